package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/domain/identity"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
)

const actorKey = "actor"

// JWTAuth は Bearer トークン（HS256）を検証し、利用者IDとロールを identity.Actor として保存する
// 利用者IDは user_id クレーム、無ければ sub を使う
func JWTAuth(secret string) echo.MiddlewareFunc {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrUnauthenticated.Error())
			}

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "トークンが無効です").SetInternal(err)
			}

			userID := stringClaim(claims, "user_id")
			if userID == "" {
				userID = stringClaim(claims, "sub")
			}
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrUnauthenticated.Error())
			}

			actor := identity.Actor{UserID: userID, Role: identity.ParseRole(stringClaim(claims, "role"))}
			SetActor(c, actor)

			// 以降のログに利用者IDを付ける
			ctx := c.Request().Context()
			scoped := logger.FromContext(ctx).With(zap.String("user_id", actor.UserID))
			c.SetRequest(c.Request().WithContext(logger.WithContext(ctx, scoped)))

			return next(c)
		}
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// SetActor は認証済みの操作者をコンテキストに保存する
func SetActor(c echo.Context, actor identity.Actor) {
	c.Set(actorKey, actor)
}

// ActorFrom は JWTAuth が保存した操作者を返す
func ActorFrom(c echo.Context) (identity.Actor, error) {
	actor, ok := c.Get(actorKey).(identity.Actor)
	if !ok || actor.UserID == "" {
		return identity.Actor{}, identity.ErrUnauthenticated
	}
	return actor, nil
}
