package cdc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ArsMedicaTech/fhir-sync/domain"
)

// ColumnMap assigns source-table column ordinals to patient fields.
// A value of -1 marks a field that is not captured. The ordinal layout
// is an external contract with the source schema: the binlog emits bare
// positional values, so this map must match the table's declared column
// order.
type ColumnMap struct {
	DemographicNo int
	FirstName     int
	LastName      int
	DateOfBirth   int
	Sex           int
	Phone         int
	Email         int
	City          int
	Region        int
	Country       int
	Postal        int
}

// DefaultColumnMap mirrors the demographic table's declared column
// order in the source system.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		DemographicNo: 0,
		FirstName:     1,
		LastName:      2,
		DateOfBirth:   3,
		Sex:           4,
		Phone:         5,
		Email:         6,
		City:          7,
		Region:        8,
		Country:       9,
		Postal:        10,
	}
}

// fieldColumnNames maps patient fields to source column names, used
// when the binlog carries full row metadata and ordinals can be
// resolved by name instead of position.
var fieldColumnNames = struct {
	DemographicNo string
	FirstName     string
	LastName      string
	DateOfBirth   string
	Sex           string
	Phone         string
	Email         string
	City          string
	Region        string
	Country       string
	Postal        string
}{
	DemographicNo: "demographic_no",
	FirstName:     "first_name",
	LastName:      "last_name",
	DateOfBirth:   "date_of_birth",
	Sex:           "sex",
	Phone:         "phone",
	Email:         "email",
	City:          "city",
	Region:        "province",
	Country:       "country",
	Postal:        "postal",
}

// Mapper turns raw replication rows into domain patients. Rows from
// any table other than the tracked one are silently skipped; a column
// that cannot be read as the expected primitive degrades to an absent
// field rather than failing the row.
type Mapper struct {
	table         string
	cols          ColumnMap
	resolveByName bool
}

// NewMapper creates a mapper for the tracked table. When resolveByName
// is set and column names are available for a row, ordinals from the
// table metadata take precedence over the static column map.
func NewMapper(table string, cols ColumnMap, resolveByName bool) *Mapper {
	return &Mapper{table: table, cols: cols, resolveByName: resolveByName}
}

// Table returns the tracked table name.
func (m *Mapper) Table() string {
	return m.table
}

// MapRow maps one positional row from the given table. The second
// return is false when the row is filtered (wrong table) or the
// designated identifier column yields no value; filtering is not an
// error path.
func (m *Mapper) MapRow(table string, columnNames []string, row []interface{}) (domain.Patient, bool) {
	if table != m.table {
		return domain.Patient{}, false
	}

	cols := m.cols
	if m.resolveByName && len(columnNames) > 0 {
		cols = resolveColumns(columnNames)
	}

	demographicNo, ok := columnString(row, cols.DemographicNo)
	if !ok || demographicNo == "" {
		return domain.Patient{}, false
	}

	p := domain.Patient{DemographicNo: demographicNo}
	p.FirstName = optColumn(row, cols.FirstName)
	p.LastName = optColumn(row, cols.LastName)
	p.DateOfBirth = optColumn(row, cols.DateOfBirth)
	p.Sex = optColumn(row, cols.Sex)
	p.Phone = optColumn(row, cols.Phone)
	p.Email = optColumn(row, cols.Email)

	// The address tuple is all-or-nothing: every part must be present.
	city, cityOK := columnString(row, cols.City)
	region, regionOK := columnString(row, cols.Region)
	country, countryOK := columnString(row, cols.Country)
	postal, postalOK := columnString(row, cols.Postal)
	if cityOK && regionOK && countryOK && postalOK &&
		city != "" && region != "" && country != "" && postal != "" {
		p.Location = &domain.Location{City: city, Region: region, Country: country, Postal: postal}
	}

	return p, true
}

// resolveColumns builds a column map from binlog row metadata. Fields
// whose columns are missing from the table end up unmapped.
func resolveColumns(names []string) ColumnMap {
	index := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return -1
	}
	return ColumnMap{
		DemographicNo: index(fieldColumnNames.DemographicNo),
		FirstName:     index(fieldColumnNames.FirstName),
		LastName:      index(fieldColumnNames.LastName),
		DateOfBirth:   index(fieldColumnNames.DateOfBirth),
		Sex:           index(fieldColumnNames.Sex),
		Phone:         index(fieldColumnNames.Phone),
		Email:         index(fieldColumnNames.Email),
		City:          index(fieldColumnNames.City),
		Region:        index(fieldColumnNames.Region),
		Country:       index(fieldColumnNames.Country),
		Postal:        index(fieldColumnNames.Postal),
	}
}

// optColumn reads an optional column, mapping empty or unreadable
// values to nil.
func optColumn(row []interface{}, idx int) *string {
	s, ok := columnString(row, idx)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// columnString extracts a column as a string. Replication values
// arrive with their decoded binlog types; anything that has no sane
// textual reading reports false instead of failing the row.
func columnString(row []interface{}, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}

	switch v := row[idx].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case time.Time:
		return v.Format("2006-01-02"), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
