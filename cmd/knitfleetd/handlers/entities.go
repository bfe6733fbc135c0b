package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/knitfleet/pkg/api/types/errors"
	apientities "github.com/opst/knitfleet/pkg/api/types/entities"
	apiinstances "github.com/opst/knitfleet/pkg/api/types/instances"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/instances"
)

type entityActionFunc func(*instances.Service, echo.Context, instances.EntityAction) (domain.APIResult, error)

func entityActionHandler(svc *instances.Service, call entityActionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		a := instances.EntityAction{
			Type:   c.Param(ParamType),
			Entity: c.Param(ParamEntity),
			Colo:   c.QueryParam("colo"),
		}
		res, err := call(svc, c, a)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeAPIResult(res))
	}
}

func ScheduleHandler(svc *instances.Service) echo.HandlerFunc {
	return entityActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.EntityAction) (domain.APIResult, error) {
		return s.Schedule(c.Request().Context(), a)
	})
}

func SuspendHandler(svc *instances.Service) echo.HandlerFunc {
	return entityActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.EntityAction) (domain.APIResult, error) {
		return s.Suspend(c.Request().Context(), a)
	})
}

func ResumeHandler(svc *instances.Service) echo.HandlerFunc {
	return entityActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.EntityAction) (domain.APIResult, error) {
		return s.Resume(c.Request().Context(), a)
	})
}

// SubmitAndScheduleHandler stores the entity document in request body and schedules it.
func SubmitAndScheduleHandler(svc *instances.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, err := apientities.Decode(c.Request().Body)
		if err != nil {
			return apierr.FromDomain(err)
		}
		entity, err := doc.Entity()
		if err != nil {
			return apierr.FromDomain(err)
		}
		res, err := svc.SubmitAndSchedule(
			c.Request().Context(), c.Param(ParamType), c.QueryParam("colo"), entity,
		)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeAPIResult(res))
	}
}

// GetEntitySummaryHandler serves summaries of entities placed on the cluster
// given by query parameter "cluster".
func GetEntitySummaryHandler(svc *instances.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := instances.EntitySummaryQuery{
			Type:      c.Param(ParamType),
			Cluster:   c.QueryParam("cluster"),
			Start:     c.QueryParam("start"),
			End:       c.QueryParam("end"),
			Fields:    c.QueryParam("fields"),
			Tags:      listParam(c, "tags"),
			OrderBy:   c.QueryParam("orderBy"),
			SortOrder: c.QueryParam("sortOrder"),
		}
		var err error
		if q.Offset, err = intParam(c, "offset", 0); err != nil {
			return err
		}
		if q.ResultsPerPage, err = intParam(c, "numResults", 0); err != nil {
			return err
		}
		if q.NumInstances, err = intParam(c, "numInstances", 0); err != nil {
			return err
		}

		res, err := svc.GetEntitySummary(c.Request().Context(), q)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeEntitySummaryResult(res))
	}
}
