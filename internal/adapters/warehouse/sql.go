package warehouse

import (
	"fmt"
	"strings"

	"github.com/variantgroup/dashboard/internal/domain/metric"
)

const paramDateLayout = "2006-01-02"

// tableRef quotes a fully qualified table name.
func tableRef(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}

// metricColumns validates keys against the catalog before they are
// interpolated into SQL.
func metricColumns(catalog *metric.Catalog, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no metrics", ErrInvalidQuery)
	}
	if err := catalog.Validate(keys); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return strings.Join(keys, ", "), nil
}

func dateBoundsSQL(table string) string {
	return fmt.Sprintf(`SELECT
  FORMAT_DATE('%%Y-%%m-%%d', MIN(%[2]s)) AS min_date,
  FORMAT_DATE('%%Y-%%m-%%d', MAX(%[2]s)) AS max_date
FROM %[1]s`, table, ColDate)
}

func planGroupsSQL(table string) string {
	return fmt.Sprintf(`SELECT DISTINCT %[2]s, %[3]s
FROM %[1]s
WHERE %[4]s = @status
ORDER BY %[2]s, %[3]s`, table, ColApp, ColPlan, ColStatus)
}

const filterWhere = `WHERE ` + ColDate + ` BETWEEN DATE(@from_date) AND DATE(@to_date)
  AND CAST(` + ColBC + ` AS STRING) = @bc
  AND ` + ColCohort + ` = @cohort
  AND ` + ColPlan + ` IN UNNEST(@plans)
  AND ` + ColTableType + ` = @table_type
  AND ` + ColStatus + ` = @status`

func pivotSQL(table, columns string) string {
	return fmt.Sprintf(`SELECT %[2]s, %[3]s, FORMAT_DATE('%%Y-%%m-%%d', %[4]s) AS %[4]s, %[5]s
FROM %[1]s
%[6]s
ORDER BY %[2]s, %[3]s, %[4]s`, table, ColApp, ColPlan, ColDate, columns, filterWhere)
}

func chartSQL(table, columns string) string {
	return fmt.Sprintf(`SELECT %[2]s, FORMAT_DATE('%%Y-%%m-%%d', %[3]s) AS %[3]s, %[4]s
FROM %[1]s
%[5]s
ORDER BY %[2]s, %[3]s`, table, ColPlan, ColDate, columns, filterWhere)
}

func refreshSQL(staging, source string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM %s`, staging, source)
}

// validateFilter checks the parts of f that are not bound as parameters.
func validateFilter(f Filter) error {
	if len(f.Plans) == 0 {
		return fmt.Errorf("%w: no plans", ErrInvalidQuery)
	}
	if f.From.After(f.To) {
		return fmt.Errorf("%w: from is after to", ErrInvalidQuery)
	}
	switch f.TableType {
	case TableRegular, TableCrystalBall:
	default:
		return fmt.Errorf("%w: table type %q", ErrInvalidQuery, f.TableType)
	}
	return nil
}
