package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"gopkg.in/reform.v1"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/proc"
)

const schema = `CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	state        TEXT NOT NULL,
	class        TEXT NOT NULL,
	recipient    TEXT NOT NULL,
	amount       TEXT,
	predicted_id BIGINT,
	record_id    BIGINT,
	approval_tx  TEXT,
	action_tx    TEXT,
	error        TEXT,
	created      TIMESTAMP WITH TIME ZONE NOT NULL,
	updated      TIMESTAMP WITH TIME ZONE NOT NULL
)`

var columns = []string{"id", "kind", "state", "class", "recipient",
	"amount", "predicted_id", "record_id", "approval_tx", "action_tx",
	"error", "created", "updated"}

var _ proc.Journal = (*Journal)(nil)

// Journal keeps one row per submission, updated on every state change.
type Journal struct {
	db     *reform.DB
	logger log.Logger
}

// NewJournal creates a new journal.
func NewJournal(db *reform.DB) *Journal {
	return &Journal{
		db:     db,
		logger: log.New("module", "journal"),
	}
}

// Migrate creates the journal table.
func (j *Journal) Migrate() error {
	_, err := j.db.Exec(schema)
	return errors.Wrap(err, "create submissions table")
}

func hashOrNil(h common.Hash) *string {
	if h == (common.Hash{}) {
		return nil
	}
	return pointer.ToString(h.Hex())
}

func uintOrNil(v uint64) *uint64 {
	if v == 0 {
		return nil
	}
	return pointer.ToUint64(v)
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return pointer.ToString(s)
}

// Record converts a submission into its journal row.
func Record(tx *proc.PendingTransaction) *data.Submission {
	row := &data.Submission{
		ID:          tx.ID,
		Kind:        tx.Kind,
		State:       tx.State.String(),
		Class:       tx.Class.String(),
		Recipient:   strings.ToLower(tx.Recipient.Hex()),
		PredictedID: uintOrNil(tx.PredictedRecordID),
		RecordID:    uintOrNil(tx.RecordID),
		ApprovalTx:  hashOrNil(tx.ApprovalTx),
		ActionTx:    hashOrNil(tx.ActionTx),
		Error:       stringOrNil(tx.Error),
		Created:     tx.Created.UTC(),
		Updated:     tx.Updated.UTC(),
	}

	if tx.Amount != nil {
		row.Amount = pointer.ToString(tx.Amount.String())
	}

	return row
}

// Save inserts or updates the row of tx.
func (j *Journal) Save(ctx context.Context, tx *proc.PendingTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	row := Record(tx)

	placeholders := j.db.Placeholders(1, len(columns))
	var updates []string
	for _, c := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	query := fmt.Sprintf(`INSERT INTO submissions (%s) VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET %s`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	_, err := j.db.Exec(query, row.ID, row.Kind, row.State, row.Class,
		row.Recipient, row.Amount, row.PredictedID, row.RecordID,
		row.ApprovalTx, row.ActionTx, row.Error, row.Created, row.Updated)
	if err != nil {
		return errors.Wrapf(err, "save submission %s", row.ID)
	}

	j.logger.Trace("Submission saved", "id", row.ID, "state", row.State)

	return nil
}

// Recent returns the latest submissions, newest first.
func (j *Journal) Recent(limit uint64) ([]*data.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions
		ORDER BY updated DESC LIMIT %s`, strings.Join(columns, ", "),
		j.db.Placeholder(1))

	rows, err := j.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select submissions")
	}
	defer rows.Close()

	var result []*data.Submission
	for rows.Next() {
		row, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func scanSubmission(rows *sql.Rows) (*data.Submission, error) {
	var row data.Submission
	var predicted, record sql.NullInt64

	err := rows.Scan(&row.ID, &row.Kind, &row.State, &row.Class,
		&row.Recipient, &row.Amount, &predicted, &record, &row.ApprovalTx,
		&row.ActionTx, &row.Error, &row.Created, &row.Updated)
	if err != nil {
		return nil, errors.Wrap(err, "scan submission")
	}

	if predicted.Valid {
		row.PredictedID = pointer.ToUint64(uint64(predicted.Int64))
	}
	if record.Valid {
		row.RecordID = pointer.ToUint64(uint64(record.Int64))
	}
	row.Created = row.Created.In(time.UTC)
	row.Updated = row.Updated.In(time.UTC)

	return &row, nil
}
