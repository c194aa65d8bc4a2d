package models

const (
	MwUserIDKey = "userID"
	MwRoleKey   = "role"
	MwTokenKey  = "token"

	RefreshTokenCookie = "refreshToken"
	AccessTokenCookie  = "accessToken"
)
