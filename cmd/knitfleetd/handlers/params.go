package handlers

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/knitfleet/pkg/api/types/errors"
	"github.com/opst/knitfleet/pkg/domain"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
	"gopkg.in/yaml.v3"
)

// names of path parameters.
const (
	ParamType   = "type"
	ParamEntity = "entity"
)

// intParam reads an integer query parameter. Missing parameter is def.
func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, apierr.BadRequest(fmt.Sprintf(`"%s" should be an integer`, name), err)
	}
	return i, nil
}

// listParam reads a comma separated query parameter.
//
// The parameter may be repeated, then all of them are concatenated.
func listParam(c echo.Context, name string) []string {
	ret := []string{}
	for _, v := range c.QueryParams()[name] {
		ret = append(ret, kstrings.SplitIfNotEmpty(v, ",")...)
	}
	return ret
}

// properties reads a YAML (or JSON) mapping from request body.
//
// Empty body is no properties.
func properties(c echo.Context) (domain.Properties, error) {
	body := c.Request().Body
	if body == nil {
		return nil, nil
	}
	props := domain.Properties{}
	if err := yaml.NewDecoder(body).Decode(&props); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, apierr.BadRequest("request body should be a mapping of properties in YAML or JSON", err)
	}
	return props, nil
}

func respond(c echo.Context, status int, body any) error {
	c.Response().Header().Add("Content-Type", "application/json")
	return c.JSON(status, body)
}
