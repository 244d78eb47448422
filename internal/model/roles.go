package model

// RoleName is a named membership tag on a community member
type RoleName string

// The fixed set of roles the engine manages permissions for
const (
	RoleEveryone  RoleName = "@everyone"
	RoleSignedUp  RoleName = "Signed Up"
	RoleAlive     RoleName = "Alive"
	RoleDead      RoleName = "Dead"
	RoleSpectator RoleName = "Spectator"
	RoleMod       RoleName = "Mod"
)

// GameRoles are stripped from members when a game ends
var GameRoles = []RoleName{RoleSignedUp, RoleAlive, RoleDead}
