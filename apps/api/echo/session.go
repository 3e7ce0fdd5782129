package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core/dashboard"
)

var keepAliveInterval = 25 * time.Second

type sessionApi struct {
	hub *dashboard.Hub
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, hub *dashboard.Hub) {
	api := sessionApi{hub: hub}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.open)

	// detail endpoints
	dg := sg.Group("/:sid", sessionMiddleware(hub))
	dg.GET("", api.retrieve)
	dg.DELETE("", api.close)
	dg.GET("/events", api.events)
	dg.POST("/alerts/read", api.markAllAlertsRead)
	dg.POST("/alerts/:id/read", api.markAlertRead)
	dg.DELETE("/alerts/:id", api.removeAlert)
}

type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Dashboard dashboard.Snapshot `json:"dashboard"`
}

// Handlers

func (api *sessionApi) open(ctx echo.Context) error {
	coach, err := getContextCoach(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context coach")
	}
	v, err := api.hub.Open(ctx.Request().Context(), coach)
	if err != nil {
		return errors.Wrap(err, "mounting dashboard")
	}
	return ctx.JSON(http.StatusCreated, SessionResponse{SessionID: v.ID(), Dashboard: v.Snapshot()})
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, v.Snapshot())
}

func (api *sessionApi) close(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}
	if err = api.hub.Close(v.ID(), v.Coach().ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// events streams a snapshot on connect and after every change, until the client
// goes away or the session is closed. One stream per session.
func (api *sessionApi) events(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	send := func(event string, data interface{}) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(err, "encoding event")
		}
		if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	if err = send("snapshot", v.Snapshot()); err != nil {
		return nil
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		case <-v.Done():
			_ = send("closed", echo.Map{"session_id": v.ID()})
			return nil
		case <-v.Changed():
			v.Touch()
			if err = send("snapshot", v.Snapshot()); err != nil {
				return nil
			}
		case <-keepAlive.C:
			v.Touch()
			if _, err = fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (api *sessionApi) markAlertRead(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}
	if err = v.MarkAlertRead(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking alert read")
	}
	return ctx.JSON(http.StatusOK, v.Snapshot())
}

func (api *sessionApi) markAllAlertsRead(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}
	if err = v.MarkAllAlertsRead(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "marking all alerts read")
	}
	return ctx.JSON(http.StatusOK, v.Snapshot())
}

func (api *sessionApi) removeAlert(ctx echo.Context) error {
	v, err := getContextView(ctx)
	if err != nil {
		return err
	}
	if err = v.RemoveAlert(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing alert")
	}
	return ctx.NoContent(http.StatusNoContent)
}
