// Package jwt verifies the HS256 access tokens issued by the auth server to
// signed-in users.
//
// Tokens are signed with the project's JWT secret; the subject claim holds
// the user id and the audience is "authenticated" for regular sessions.
//
//	v, err := jwt.New(os.Getenv("SUPABASE_JWT_SECRET"))
//	if err != nil {
//		return err
//	}
//
//	token, err := jwt.BearerToken(r)
//	if err != nil {
//		return err
//	}
//	claims, err := v.Verify(token)
//	if err != nil {
//		return err // ErrExpiredToken, ErrInvalidSignature, ...
//	}
//	userID, err := claims.UserID()
//
// Only HS256 is accepted; tokens declaring any other algorithm are rejected
// to rule out algorithm confusion.
package jwt
