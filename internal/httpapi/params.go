package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// queryInt parses the named query parameter, falling back to def when it is
// absent. Values outside [minV, maxV] are an error.
func queryInt(c *gin.Context, name string, def, minV, maxV int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < minV || v > maxV {
		return 0, fmt.Errorf("%s must be between %d and %d", name, minV, maxV)
	}
	return v, nil
}

// querySourceNames accepts both repeated source_name parameters and
// comma-separated lists.
func querySourceNames(c *gin.Context) []string {
	var names []string
	for _, v := range c.QueryArray("source_name") {
		names = append(names, strings.Split(v, ",")...)
	}
	return lo.Uniq(lo.Compact(lo.Map(names, func(n string, _ int) string {
		return strings.TrimSpace(n)
	})))
}
