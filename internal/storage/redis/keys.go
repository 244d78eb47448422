package redis

import (
	"fmt"

	"github.com/mcoot/wolfbot/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "wolfbot"

// counterKey returns the Redis key for a community's game counter
func counterKey(community model.CommunityID) string {
	return fmt.Sprintf("%s:community:%s:counter", keyPrefix, community)
}

// currentGameKey returns the Redis key holding the id of a community's open game
func currentGameKey(community model.CommunityID) string {
	return fmt.Sprintf("%s:community:%s:current", keyPrefix, community)
}

// gameKey returns the Redis key for a Game
func gameKey(id model.GameID) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, id)
}

// playersKey returns the Redis HASH of member id -> Player for a game
func playersKey(id model.GameID) string {
	return fmt.Sprintf("%s:players:%s", keyPrefix, id)
}

// votesKey returns the Redis HASH of voter id -> Vote for one game day
func votesKey(id model.GameID, day int) string {
	return fmt.Sprintf("%s:votes:%s:%d", keyPrefix, id, day)
}

// voteDaysIndexKey returns the Redis SET of vote hashes for a game
func voteDaysIndexKey(id model.GameID) string {
	return fmt.Sprintf("%s:idx:vote_days:%s", keyPrefix, id)
}

// auxChannelsKey returns the Redis HASH of name -> AuxChannel for a game
func auxChannelsKey(id model.GameID) string {
	return fmt.Sprintf("%s:aux:%s", keyPrefix, id)
}

// journalsKey returns the Redis HASH of member id -> Journal for a community
func journalsKey(community model.CommunityID) string {
	return fmt.Sprintf("%s:journals:%s", keyPrefix, community)
}
