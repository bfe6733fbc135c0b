package main

import (
	"github.com/labstack/echo/v4"
	"github.com/opst/knitfleet/cmd/knitfleetd/handlers"
	"github.com/opst/knitfleet/pkg/instances"
	"github.com/opst/knitfleet/pkg/metrics"
)

// register routes operations of svc under /api, and metrics at /metrics.
//
// mw applies to /api only.
func register(e *echo.Echo, svc *instances.Service, m *metrics.Metrics, mw ...echo.MiddlewareFunc) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	api := e.Group("/api", mw...)

	target := "/:" + handlers.ParamType + "/:" + handlers.ParamEntity
	{
		inst := api.Group("/instance")
		inst.GET("/running"+target, handlers.GetRunningInstancesHandler(svc))
		inst.GET("/list"+target, handlers.GetInstancesHandler(svc))
		inst.GET("/status"+target, handlers.GetStatusHandler(svc))
		inst.GET("/summary"+target, handlers.GetSummaryHandler(svc))
		inst.GET("/logs"+target, handlers.GetLogsHandler(svc))
		inst.GET("/params"+target, handlers.GetInstanceParamsHandler(svc))

		inst.POST("/kill"+target, handlers.KillInstanceHandler(svc))
		inst.POST("/suspend"+target, handlers.SuspendInstanceHandler(svc))
		inst.POST("/resume"+target, handlers.ResumeInstanceHandler(svc))
		inst.POST("/rerun"+target, handlers.ReRunInstanceHandler(svc))
	}

	{
		ent := api.Group("/entities")
		ent.POST("/schedule"+target, handlers.ScheduleHandler(svc))
		ent.POST("/submitAndSchedule/:"+handlers.ParamType, handlers.SubmitAndScheduleHandler(svc))
		ent.POST("/suspend"+target, handlers.SuspendHandler(svc))
		ent.POST("/resume"+target, handlers.ResumeHandler(svc))
		ent.GET("/summary/:"+handlers.ParamType, handlers.GetEntitySummaryHandler(svc))
	}
}
