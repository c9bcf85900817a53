package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alienxp03/oraculum/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	scenario TEXT NOT NULL,
	product_name TEXT NOT NULL,
	status TEXT NOT NULL,
	progress REAL NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS agents (
	job_id TEXT NOT NULL,
	id INTEGER NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	demographic TEXT NOT NULL,
	beliefs_json TEXT NOT NULL,
	spending_profile TEXT,
	speaking_style TEXT,
	skepticism TEXT NOT NULL,
	skills TEXT,
	response_count INTEGER NOT NULL,
	avg_sentiment REAL NOT NULL,
	PRIMARY KEY (job_id, id),
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS results (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	agent_id INTEGER NOT NULL,
	agent_name TEXT NOT NULL,
	scenario TEXT NOT NULL,
	round INTEGER NOT NULL,
	phase TEXT,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	thought_process TEXT,
	sources TEXT,
	sentiment TEXT NOT NULL,
	category TEXT NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_sentiment ON results(sentiment);
`

// SQLiteExporter writes a standalone SQLite database with one job in it,
// for analysts who want to query results with SQL.
type SQLiteExporter struct{}

// Export builds the database in a temporary file and copies it to w.
func (e *SQLiteExporter) Export(job *core.Job, w io.Writer) error {
	dir, err := os.MkdirTemp("", "oraculum-export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "job.db")
	if err := WriteSQLite(job, path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to copy export: %w", err)
	}
	return nil
}

// WriteSQLite writes job into the database at path, creating the file and
// schema as needed. Writing the same job twice fails.
func WriteSQLite(job *core.Job, path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT INTO jobs (id, scenario, product_name, status, progress, error, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Scenario,
		job.Product,
		string(job.Status),
		job.Progress,
		nullString(job.Error),
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	for _, a := range job.Agents {
		beliefs, err := json.Marshal(a.Beliefs)
		if err != nil {
			return fmt.Errorf("failed to marshal beliefs: %w", err)
		}
		_, err = tx.Exec(`
		INSERT INTO agents (job_id, id, name, role, demographic, beliefs_json, spending_profile, speaking_style, skepticism, skills, response_count, avg_sentiment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			job.ID,
			a.ID,
			a.Name,
			a.Role,
			a.Demographic,
			string(beliefs),
			a.SpendingProfile,
			a.SpeakingStyle,
			a.Skepticism.String(),
			strings.Join(a.Skills, ","),
			a.ResponseCount,
			a.AvgSentiment,
		)
		if err != nil {
			return fmt.Errorf("failed to insert agent %d: %w", a.ID, err)
		}
	}

	stmt, err := tx.Prepare(`
	INSERT INTO results (job_id, agent_id, agent_name, scenario, round, phase, prompt, response, thought_process, sources, sentiment, category, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range job.Results {
		_, err := stmt.Exec(
			job.ID,
			r.AgentID,
			r.AgentName,
			r.Scenario,
			r.Round,
			r.Phase,
			r.Prompt,
			r.Response,
			r.Thought,
			nullString(r.Sources),
			r.Sentiment,
			r.Category,
			nullString(r.Error),
			r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

// FileExtension returns the file extension for SQLite.
func (e *SQLiteExporter) FileExtension() string {
	return "db"
}

// ContentType returns the MIME type for SQLite.
func (e *SQLiteExporter) ContentType() string {
	return "application/vnd.sqlite3"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
