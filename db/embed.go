// Package db embeds the relational schema for the order store.
package db

import _ "embed"

// Schema holds the DDL for the orders table. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
