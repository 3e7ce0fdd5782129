package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core/dashboard"
)

const contextViewKey = "view"

// sessionMiddleware resolves the `:sid` param to the context coach's mounted view.
func sessionMiddleware(hub *dashboard.Hub) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			coach, err := getContextCoach(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context coach")
			}
			v, err := hub.Get(ctx.Param("sid"), coach.ID)
			if err != nil {
				return err
			}
			ctx.Set(contextViewKey, v)
			return next(ctx)
		}
	}
}

func getContextView(ctx echo.Context) (*dashboard.View, error) {
	if v, ok := ctx.Get(contextViewKey).(*dashboard.View); ok {
		return v, nil
	}
	return nil, errHttpNotFound
}
