package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/cfg"
	"github.com/ArsMedicaTech/fhir-sync/domain"
	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

// SourceReader reads patient rows straight from the source demographic
// table, for lookups that predate the current replication session.
type SourceReader struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	table   string
}

// OpenSourceReader connects to the configured source database.
func OpenSourceReader() (*SourceReader, error) {
	db, err := sql.Open("mysql", cfg.SourceDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open source connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	return &SourceReader{
		db:      db,
		dialect: goqu.Dialect("mysql"),
		table:   cfg.Config.Database.Table,
	}, nil
}

// Get fetches and adapts one patient row. A missing row is (nil, nil),
// not an error.
func (r *SourceReader) Get(ctx context.Context, demographicNo string) (*fhir.Patient, error) {
	query, args, err := r.dialect.
		From(r.table).
		Select(
			"demographic_no", "first_name", "last_name", "date_of_birth",
			"sex", "phone", "email", "city", "province", "country", "postal",
		).
		Where(goqu.C("demographic_no").Eq(demographicNo)).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build patient query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)

	var (
		no                                  string
		first, last, dob, sex, phone, email sql.NullString
		city, province, country, postal     sql.NullString
	)
	err = row.Scan(&no, &first, &last, &dob, &sex, &phone, &email, &city, &province, &country, &postal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read patient %s: %w", demographicNo, err)
	}

	src := domain.Patient{
		DemographicNo: no,
		FirstName:     nullable(first),
		LastName:      nullable(last),
		DateOfBirth:   nullable(dob),
		Sex:           nullable(sex),
		Phone:         nullable(phone),
		Email:         nullable(email),
	}
	if city.Valid && province.Valid && country.Valid && postal.Valid {
		src.Location = &domain.Location{
			City:    city.String,
			Region:  province.String,
			Country: country.String,
			Postal:  postal.String,
		}
	}

	log.Debug().Str("demographic_no", no).Msg("Read patient through from source")
	return fhir.ToPatient(src), nil
}

// Close releases the source connection pool.
func (r *SourceReader) Close() error {
	return r.db.Close()
}

func nullable(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}
