package redis

import "strconv"

const keyPrefix = "bore:"

const (
	playerSeqKey   = keyPrefix + "seq:player"
	banSeqKey      = keyPrefix + "seq:ban"
	muteSeqKey     = keyPrefix + "seq:mute"
	playersKey     = keyPrefix + "players"
	playerNamesKey = keyPrefix + "player:names"
	bansKey        = keyPrefix + "bans"
	mutesKey       = keyPrefix + "mutes"
)

func playerKey(id int64) string {
	return keyPrefix + "player:" + strconv.FormatInt(id, 10)
}

func banKey(id int64) string {
	return keyPrefix + "ban:" + strconv.FormatInt(id, 10)
}

func muteKey(id int64) string {
	return keyPrefix + "mute:" + strconv.FormatInt(id, 10)
}
