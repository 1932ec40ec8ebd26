package http

import (
	stderrors "errors"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"borerelay/internal/core/domain"
	"borerelay/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json/form name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// bindError turns a gin binding failure into a 400 with a field list.
func bindError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]errors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, errors.FieldError{Field: fe.Field(), Message: describe(fe)})
		}
		return errors.NewValidationError(fields)
	}
	return errors.NewValidationError([]errors.FieldError{{Field: "body", Message: "malformed request body"}})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

func pathID(c *gin.Context, resource string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Error(errors.NewValidationError([]errors.FieldError{{Field: "id", Message: "invalid " + resource + " id"}}))
		return 0, false
	}
	return id, true
}

type pageRequest struct {
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
	SearchTerm string `form:"searchTerm" binding:"max=100"`
}

func bindPage(c *gin.Context) (domain.PageQuery, bool) {
	var req pageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(bindError(err))
		return domain.PageQuery{}, false
	}
	return domain.PageQuery{Page: req.Page, Limit: req.Limit, SearchTerm: req.SearchTerm}.Normalize(), true
}

func success(c *gin.Context) {
	c.JSON(200, gin.H{"success": true})
}
