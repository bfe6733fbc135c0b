package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/knitfleet/pkg/api/types/errors"
	apiinstances "github.com/opst/knitfleet/pkg/api/types/instances"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/instances"
)

func instanceQuery(c echo.Context) (instances.InstanceQuery, error) {
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return instances.InstanceQuery{}, err
	}
	numResults, err := intParam(c, "numResults", 0)
	if err != nil {
		return instances.InstanceQuery{}, err
	}
	return instances.InstanceQuery{
		Type:       c.Param(ParamType),
		Entity:     c.Param(ParamEntity),
		Colo:       c.QueryParam("colo"),
		Start:      c.QueryParam("start"),
		End:        c.QueryParam("end"),
		Lifecycles: listParam(c, "lifecycle"),
		FilterBy:   c.QueryParam("filterBy"),
		OrderBy:    c.QueryParam("orderBy"),
		SortOrder:  c.QueryParam("sortOrder"),
		Offset:     offset,
		NumResults: numResults,
	}, nil
}

type instancesQueryFunc func(*instances.Service, echo.Context, instances.InstanceQuery) (domain.InstancesResult, error)

func instancesHandler(svc *instances.Service, call instancesQueryFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := instanceQuery(c)
		if err != nil {
			return err
		}
		res, err := call(svc, c, q)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeResult(res))
	}
}

// GetRunningInstancesHandler serves running instances of an entity.
func GetRunningInstancesHandler(svc *instances.Service) echo.HandlerFunc {
	return instancesHandler(svc, func(s *instances.Service, c echo.Context, q instances.InstanceQuery) (domain.InstancesResult, error) {
		return s.GetRunningInstances(c.Request().Context(), q)
	})
}

// GetStatusHandler serves instances of an entity in the time window.
func GetStatusHandler(svc *instances.Service) echo.HandlerFunc {
	return instancesHandler(svc, func(s *instances.Service, c echo.Context, q instances.InstanceQuery) (domain.InstancesResult, error) {
		return s.GetStatus(c.Request().Context(), q)
	})
}

// GetInstancesHandler is GetStatusHandler, mounted as "list".
func GetInstancesHandler(svc *instances.Service) echo.HandlerFunc {
	return instancesHandler(svc, func(s *instances.Service, c echo.Context, q instances.InstanceQuery) (domain.InstancesResult, error) {
		return s.GetInstances(c.Request().Context(), q)
	})
}

func GetInstanceParamsHandler(svc *instances.Service) echo.HandlerFunc {
	return instancesHandler(svc, func(s *instances.Service, c echo.Context, q instances.InstanceQuery) (domain.InstancesResult, error) {
		return s.GetInstanceParams(c.Request().Context(), q)
	})
}

// GetLogsHandler serves instances with their log locations.
//
// Query parameter "runid" chooses the run. Without it, the latest run of each instance is used.
func GetLogsHandler(svc *instances.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := instanceQuery(c)
		if err != nil {
			return err
		}
		runID, err := intParam(c, "runid", -1)
		if err != nil {
			return err
		}
		res, err := svc.GetLogs(c.Request().Context(), q, runID)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeResult(res))
	}
}

func GetSummaryHandler(svc *instances.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := instanceQuery(c)
		if err != nil {
			return err
		}
		res, err := svc.GetSummary(c.Request().Context(), q)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeSummaryResult(res))
	}
}

type instanceActionFunc func(*instances.Service, echo.Context, instances.InstanceAction) (domain.InstancesResult, error)

func instanceActionHandler(svc *instances.Service, call instanceActionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		props, err := properties(c)
		if err != nil {
			return err
		}
		a := instances.InstanceAction{
			Type:       c.Param(ParamType),
			Entity:     c.Param(ParamEntity),
			Colo:       c.QueryParam("colo"),
			Start:      c.QueryParam("start"),
			End:        c.QueryParam("end"),
			Lifecycles: listParam(c, "lifecycle"),
			Props:      props,
		}
		res, err := call(svc, c, a)
		if err != nil {
			return apierr.FromDomain(err)
		}
		return respond(c, http.StatusOK, apiinstances.ComposeResult(res))
	}
}

func KillInstanceHandler(svc *instances.Service) echo.HandlerFunc {
	return instanceActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.InstanceAction) (domain.InstancesResult, error) {
		return s.KillInstance(c.Request().Context(), a)
	})
}

func SuspendInstanceHandler(svc *instances.Service) echo.HandlerFunc {
	return instanceActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.InstanceAction) (domain.InstancesResult, error) {
		return s.SuspendInstance(c.Request().Context(), a)
	})
}

func ResumeInstanceHandler(svc *instances.Service) echo.HandlerFunc {
	return instanceActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.InstanceAction) (domain.InstancesResult, error) {
		return s.ResumeInstance(c.Request().Context(), a)
	})
}

func ReRunInstanceHandler(svc *instances.Service) echo.HandlerFunc {
	return instanceActionHandler(svc, func(s *instances.Service, c echo.Context, a instances.InstanceAction) (domain.InstancesResult, error) {
		return s.ReRunInstance(c.Request().Context(), a)
	})
}
