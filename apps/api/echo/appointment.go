package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/dashboard"
)

type appointmentApi struct {
	hub     *dashboard.Hub
	svc     AppointmentService
	horizon time.Duration
}

func registerAppointmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, hub *dashboard.Hub, svc AppointmentService, horizon time.Duration) {
	api := appointmentApi{hub: hub, svc: svc, horizon: horizon}

	ag := g.Group("/appointments", jwt)
	ag.GET("/calendar.ics", api.calendar)
	ag.POST("/:id/summary", api.summarize)
}

// SummaryRequest is a NewSummary posted from an optional dashboard session.
// When the session is given its buckets move as soon as the write succeeds.
type SummaryRequest struct {
	SessionID string `json:"session_id"`
	Notes     string `json:"notes"`
	NextSteps string `json:"next_steps"`
}

// Handlers

func (api *appointmentApi) summarize(ctx echo.Context) error {
	coach, err := getContextCoach(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context coach")
	}

	var data SummaryRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SummaryRequest")
	}
	ns := appointment.NewSummary{
		AppointmentID: ctx.Param("id"),
		Notes:         data.Notes,
		NextSteps:     data.NextSteps,
	}

	var s appointment.Summary
	if data.SessionID != "" {
		v, vErr := api.hub.Get(data.SessionID, coach.ID)
		if vErr != nil {
			return vErr
		}
		s, err = v.SubmitSummary(ctx.Request().Context(), ns)
	} else {
		s, err = api.svc.SubmitSummary(ctx.Request().Context(), coach.ID, ns)
	}
	if err != nil {
		return errors.Wrap(err, "submitting summary")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *appointmentApi) calendar(ctx echo.Context) error {
	coach, err := getContextCoach(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context coach")
	}

	now := time.Now().UTC()
	appts, err := api.svc.Upcoming(ctx.Request().Context(), coach.ID, now, api.horizon)
	if err != nil {
		return errors.Wrap(err, "querying upcoming appointments")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="sessions.ics"`)
	return ctx.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(api.svc.Calendar(appts, now).Serialize()))
}
