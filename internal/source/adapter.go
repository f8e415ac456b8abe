package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// ListingRow is one row from a listing table's hash-repair scan.
type ListingRow struct {
	ID         int64
	RawAddress string
	StoredHash string
}

// Adapter exposes the per-table operations the queue, worker, and sync-back
// jobs need, independent of the table's actual column layout.
type Adapter interface {
	// Name returns the canonical source name ("Zillow FSBO", ...).
	Name() string
	// Table returns the underlying table name.
	Table() string
	// AddressColumn returns the raw-address column name.
	AddressColumn() string
	// ExistsByHash reports whether any row carries the given address hash.
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	// OwnerNameByHash returns the table's own owner-name value for the hash,
	// or "" when the row or value is absent.
	OwnerNameByHash(ctx context.Context, hash string) (string, error)
	// OwnerByHash maps the table's owner-equivalent columns onto an
	// OwnerRecord, or nil when no row matches.
	OwnerByHash(ctx context.Context, hash string) (*model.OwnerRecord, error)
	// UpdateOwner writes owner fields back into the table using its own
	// column names and shapes. Columns missing from older schemas cause one
	// retry with the optional fields dropped.
	UpdateOwner(ctx context.Context, hash string, rec *model.OwnerRecord) error
	// ScanPage returns a stable page of (id, raw address, stored hash).
	ScanPage(ctx context.Context, page, size int) ([]ListingRow, error)
	// UpdateHash rewrites a row's stored address hash.
	UpdateHash(ctx context.Context, id int64, hash string) error
}

// undefinedColumn is the Postgres error code for a column that does not exist.
const undefinedColumn = "42703"

type tableAdapter struct {
	spec TableSpec
	pool db.Pool
}

// NewAdapter creates an adapter for one listing table.
func NewAdapter(spec TableSpec, pool db.Pool) Adapter {
	return &tableAdapter{spec: spec, pool: pool}
}

func (a *tableAdapter) Name() string          { return a.spec.Source }
func (a *tableAdapter) Table() string         { return a.spec.Table }
func (a *tableAdapter) AddressColumn() string { return a.spec.AddressColumn }

func (a *tableAdapter) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE address_hash = $1)`, quote(a.spec.Table)),
		hash,
	).Scan(&exists)
	return exists, eris.Wrapf(err, "source: %s exists by hash", a.spec.Table)
}

func (a *tableAdapter) OwnerNameByHash(ctx context.Context, hash string) (string, error) {
	var name *string
	err := a.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE address_hash = $1 LIMIT 1`,
			quote(a.spec.NameColumn), quote(a.spec.Table)),
		hash,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "source: %s owner name by hash", a.spec.Table)
	}
	if name == nil {
		return "", nil
	}
	return strings.TrimSpace(*name), nil
}

func (a *tableAdapter) OwnerByHash(ctx context.Context, hash string) (*model.OwnerRecord, error) {
	cols := []string{quote(a.spec.NameColumn)}
	for _, c := range a.spec.EmailColumns {
		cols = append(cols, quote(c.Name))
	}
	for _, c := range a.spec.PhoneColumns {
		cols = append(cols, quote(c.Name))
	}
	if a.spec.MailingColumn != "" {
		cols = append(cols, quote(a.spec.MailingColumn))
	}

	row := a.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE address_hash = $1 LIMIT 1`,
			strings.Join(cols, ", "), quote(a.spec.Table)),
		hash,
	)

	var name, mailing *string
	emails := make([]scanCell, len(a.spec.EmailColumns))
	phones := make([]scanCell, len(a.spec.PhoneColumns))

	targets := []any{&name}
	for i, c := range a.spec.EmailColumns {
		emails[i].array = c.Array
		targets = append(targets, emails[i].target())
	}
	for i, c := range a.spec.PhoneColumns {
		phones[i].array = c.Array
		targets = append(targets, phones[i].target())
	}
	if a.spec.MailingColumn != "" {
		targets = append(targets, &mailing)
	}

	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "source: %s owner by hash", a.spec.Table)
	}

	rec := &model.OwnerRecord{
		AddressHash:   hash,
		Source:        model.SourceScraped,
		ListingSource: a.spec.Source,
	}
	if name != nil {
		rec.OwnerName = strings.TrimSpace(*name)
	}
	rec.OwnerEmail = firstValue(emails)
	rec.OwnerPhone = firstValue(phones)
	if mailing != nil {
		rec.MailingAddress = strings.TrimSpace(*mailing)
	}
	return rec, nil
}

func (a *tableAdapter) UpdateOwner(ctx context.Context, hash string, rec *model.OwnerRecord) error {
	query, args, err := a.buildOwnerUpdate(hash, rec, true)
	if err != nil {
		return err
	}
	if query == "" {
		return nil
	}

	_, err = a.pool.Exec(ctx, query, args...)
	if err == nil {
		return nil
	}

	// Older copies of some tables predate the optional columns; retry with
	// just the core fields instead of failing the whole batch.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedColumn {
		zap.L().Warn("sync-back column missing, retrying with core fields",
			zap.String("table", a.spec.Table),
			zap.String("column", pgErr.ColumnName))
		query, args, buildErr := a.buildOwnerUpdate(hash, rec, false)
		if buildErr != nil {
			return buildErr
		}
		if query == "" {
			return nil
		}
		if _, retryErr := a.pool.Exec(ctx, query, args...); retryErr != nil {
			return eris.Wrapf(retryErr, "source: %s update owner (reduced)", a.spec.Table)
		}
		return nil
	}

	return eris.Wrapf(err, "source: %s update owner", a.spec.Table)
}

// buildOwnerUpdate assembles the per-table UPDATE. With includeOptional false
// only the name and the first email/phone columns are written.
func (a *tableAdapter) buildOwnerUpdate(hash string, rec *model.OwnerRecord, includeOptional bool) (string, []any, error) {
	var sets []string
	var args []any

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(col), len(args)))
	}

	if rec.OwnerName != "" {
		add(a.spec.NameColumn, rec.OwnerName)
	}
	if rec.OwnerEmail != "" {
		for i, c := range a.spec.EmailColumns {
			if i > 0 && !includeOptional {
				break
			}
			val, err := columnValue(c, rec.OwnerEmail)
			if err != nil {
				return "", nil, err
			}
			add(c.Name, val)
		}
	}
	if rec.OwnerPhone != "" {
		for i, c := range a.spec.PhoneColumns {
			if i > 0 && !includeOptional {
				break
			}
			val, err := columnValue(c, rec.OwnerPhone)
			if err != nil {
				return "", nil, err
			}
			add(c.Name, val)
		}
	}
	if includeOptional && a.spec.MailingColumn != "" && rec.MailingAddress != "" {
		add(a.spec.MailingColumn, rec.MailingAddress)
	}

	if len(sets) == 0 {
		return "", nil, nil
	}

	args = append(args, hash)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE address_hash = $%d`,
		quote(a.spec.Table), strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func (a *tableAdapter) ScanPage(ctx context.Context, page, size int) ([]ListingRow, error) {
	rows, err := a.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, %s, address_hash FROM %s ORDER BY id OFFSET $1 LIMIT $2`,
			quote(a.spec.AddressColumn), quote(a.spec.Table)),
		page*size, size,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "source: %s scan page", a.spec.Table)
	}
	defer rows.Close()

	var out []ListingRow
	for rows.Next() {
		var r ListingRow
		var addr, stored *string
		if err := rows.Scan(&r.ID, &addr, &stored); err != nil {
			return nil, eris.Wrapf(err, "source: %s scan row", a.spec.Table)
		}
		if addr != nil {
			r.RawAddress = *addr
		}
		if stored != nil {
			r.StoredHash = *stored
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "source: %s scan iterate", a.spec.Table)
}

func (a *tableAdapter) UpdateHash(ctx context.Context, id int64, hash string) error {
	_, err := a.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET address_hash = $2 WHERE id = $1`, quote(a.spec.Table)),
		id, hash,
	)
	return eris.Wrapf(err, "source: %s update hash", a.spec.Table)
}

// scanCell holds one email/phone column value in either shape.
type scanCell struct {
	array  bool
	text   *string
	rawArr []byte
}

func (c *scanCell) target() any {
	if c.array {
		return &c.rawArr
	}
	return &c.text
}

func (c *scanCell) value() string {
	if c.array {
		if len(c.rawArr) == 0 {
			return ""
		}
		var vals []string
		if err := json.Unmarshal(c.rawArr, &vals); err != nil {
			return ""
		}
		for _, v := range vals {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
		return ""
	}
	if c.text == nil {
		return ""
	}
	return strings.TrimSpace(*c.text)
}

func firstValue(cells []scanCell) string {
	for i := range cells {
		if v := cells[i].value(); v != "" {
			return v
		}
	}
	return ""
}

// columnValue wraps scalar values into a one-element JSON array for array
// columns.
func columnValue(c ColumnSpec, val string) (any, error) {
	if !c.Array {
		return val, nil
	}
	b, err := json.Marshal([]string{val})
	if err != nil {
		return nil, eris.Wrapf(err, "source: marshal %s value", c.Name)
	}
	return b, nil
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
