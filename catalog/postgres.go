//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LakePipe.
//
// LakePipe is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LakePipe is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LakePipe. If not, see https://www.gnu.org/licenses/.

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/predicate"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS lakepipe_tables (
		database_name  TEXT NOT NULL,
		table_name     TEXT NOT NULL,
		location       TEXT NOT NULL,
		format         TEXT NOT NULL,
		columns        JSONB NOT NULL,
		partition_keys JSONB NOT NULL,
		parameters     JSONB NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (database_name, table_name)
	)`,
	`CREATE TABLE IF NOT EXISTS lakepipe_partitions (
		database_name    TEXT NOT NULL,
		table_name       TEXT NOT NULL,
		partition_values TEXT[] NOT NULL,
		location         TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (database_name, table_name, partition_values),
		FOREIGN KEY (database_name, table_name)
			REFERENCES lakepipe_tables (database_name, table_name) ON DELETE CASCADE
	)`,
}

// PostgresCatalogOptions configures the PostgreSQL catalog.
type PostgresCatalogOptions struct {
	DSN             string        // PostgreSQL connection string
	MaxOpenConns    int           // Max open connections
	MaxIdleConns    int           // Max idle connections
	ConnMaxLifetime time.Duration // Max connection lifetime
	QueryTimeout    time.Duration // Timeout for the initial ping
}

// PostgresCatalogOption represents a configuration function for PostgresCatalogOptions.
type PostgresCatalogOption func(*PostgresCatalogOptions)

func WithMaxOpenConns(n int) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.MaxOpenConns = n
	}
}

func WithQueryTimeout(d time.Duration) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.QueryTimeout = d
	}
}

// PostgresCatalog implements Catalog as a metastore in PostgreSQL.
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog connects to PostgreSQL. Call Migrate before first use.
func NewPostgresCatalog(dsn string, options ...PostgresCatalogOption) (*PostgresCatalog, error) {
	opts := PostgresCatalogOptions{
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.DSN == "" {
		return nil, &CatalogError{Op: "connect", Err: fmt.Errorf("dsn is required")}
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &CatalogError{Op: "connect", Err: fmt.Errorf("failed to open database: %w", err)}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &CatalogError{Op: "connect", Err: fmt.Errorf("failed to ping database: %w", err)}
	}
	return &PostgresCatalog{db: db}, nil
}

// NewPostgresCatalogWithDB wraps an open database handle.
func NewPostgresCatalogWithDB(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Migrate creates the catalog tables if they do not exist.
func (p *PostgresCatalog) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return &CatalogError{Op: "migrate", Err: err}
		}
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresCatalog) Close() error {
	return p.db.Close()
}

func (p *PostgresCatalog) GetTable(ctx context.Context, database, table string) (*Table, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT location, format, columns, partition_keys, parameters
		   FROM lakepipe_tables WHERE database_name = $1 AND table_name = $2`,
		database, table)

	t := &Table{Database: database, Name: table}
	var cols, keys, params []byte
	if err := row.Scan(&t.Location, &t.Format, &cols, &keys, &params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: err}
	}
	if err := decodeColumns(cols, &t.Columns); err != nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: err}
	}
	if err := decodeColumns(keys, &t.PartitionKeys); err != nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: err}
	}
	if err := jsoniter.Unmarshal(params, &t.Parameters); err != nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: err}
	}
	return t, nil
}

func (p *PostgresCatalog) GetPartitions(ctx context.Context, database, table, expression string) ([]Partition, error) {
	t, err := p.GetTable(ctx, database, table)
	if err != nil {
		return nil, err
	}
	var expr predicate.Expr
	if expression != "" {
		if expr, err = predicate.Parse(expression); err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
		}
		if err := predicate.Restrict(expr, t.PartitionKeyNames()); err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
		}
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT partition_values, location FROM lakepipe_partitions
		  WHERE database_name = $1 AND table_name = $2 ORDER BY location`,
		database, table)
	if err != nil {
		return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
	}
	defer rows.Close()

	var out []Partition
	for rows.Next() {
		var part Partition
		if err := rows.Scan(pq.Array(&part.Values), &part.Location); err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
		}
		if expr != nil {
			ok, err := predicate.Match(expr, part.KeyValues(t.PartitionKeyNames()))
			if err != nil {
				return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
			}
			if !ok {
				continue
			}
		}
		out = append(out, part)
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
	}
	return out, nil
}

func (p *PostgresCatalog) CreateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "create_table", Err: err}
	}
	cols, keys, params, err := encodeTable(table)
	if err != nil {
		return &CatalogError{Op: "create_table", Database: table.Database, Table: table.Name, Err: err}
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO lakepipe_tables (database_name, table_name, location, format, columns, partition_keys, parameters)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		table.Database, table.Name, table.Location, table.Format, cols, keys, params)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			err = fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
		return &CatalogError{Op: "create_table", Database: table.Database, Table: table.Name, Err: err}
	}
	return nil
}

func (p *PostgresCatalog) UpdateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "update_table", Err: err}
	}
	cols, keys, params, err := encodeTable(table)
	if err != nil {
		return &CatalogError{Op: "update_table", Database: table.Database, Table: table.Name, Err: err}
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE lakepipe_tables
		    SET location = $3, format = $4, columns = $5, partition_keys = $6, parameters = $7, updated_at = now()
		  WHERE database_name = $1 AND table_name = $2`,
		table.Database, table.Name, table.Location, table.Format, cols, keys, params)
	if err != nil {
		return &CatalogError{Op: "update_table", Database: table.Database, Table: table.Name, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &CatalogError{Op: "update_table", Database: table.Database, Table: table.Name, Err: ErrNotFound}
	}
	return nil
}

func (p *PostgresCatalog) AddPartitions(ctx context.Context, database, table string, partitions []Partition) error {
	if len(partitions) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lakepipe_partitions (database_name, table_name, partition_values, location)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`)
	if err != nil {
		return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: err}
	}
	defer stmt.Close()

	for _, part := range partitions {
		if _, err := stmt.ExecContext(ctx, database, table, pq.Array(part.Values), part.Location); err != nil {
			return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: err}
	}
	return nil
}

func (p *PostgresCatalog) DeletePartitions(ctx context.Context, database, table string, values [][]string) error {
	for _, v := range values {
		if _, err := p.db.ExecContext(ctx,
			`DELETE FROM lakepipe_partitions
			  WHERE database_name = $1 AND table_name = $2 AND partition_values = $3`,
			database, table, pq.Array(v)); err != nil {
			return &CatalogError{Op: "delete_partitions", Database: database, Table: table, Err: err}
		}
	}
	return nil
}

type columnJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func encodeColumns(cols []core.Column) ([]byte, error) {
	out := make([]columnJSON, len(cols))
	for i, c := range cols {
		out[i] = columnJSON{Name: c.Name, Type: string(c.Type)}
	}
	return jsoniter.Marshal(out)
}

func decodeColumns(data []byte, into *[]core.Column) error {
	var cols []columnJSON
	if err := jsoniter.Unmarshal(data, &cols); err != nil {
		return err
	}
	out := make([]core.Column, 0, len(cols))
	for _, c := range cols {
		dt, err := core.ParseDataType(c.Type)
		if err != nil {
			return err
		}
		out = append(out, core.Column{Name: c.Name, Type: dt})
	}
	*into = out
	return nil
}

func encodeTable(t *Table) (cols, keys, params []byte, err error) {
	if cols, err = encodeColumns(t.Columns); err != nil {
		return
	}
	if keys, err = encodeColumns(t.PartitionKeys); err != nil {
		return
	}
	p := t.Parameters
	if p == nil {
		p = map[string]string{}
	}
	params, err = jsoniter.Marshal(p)
	return
}
