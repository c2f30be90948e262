package enrollcode

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CodeRow is one line of a code listing.
type CodeRow struct {
	Code        string    `json:"code"`
	Policy      string    `json:"policy"`
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount"`
	Redemptions int64     `json:"redemptions"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutputOptions controls a code listing. FullHistory lists every code
// with its redemption count; otherwise only the usable remainder is
// shown. An empty Format falls back to the configured default.
type OutputOptions struct {
	Format      string
	FullHistory bool
}

// OutputCodes writes a contract's codes to w. The usable-remaining view
// shows the first seat_cap − attached_learners unredeemed codes, which
// is what an account manager hands out next.
func (r *Reconciler) OutputCodes(ctx context.Context, w io.Writer, contractID snowflake.ID, opts OutputOptions) error {
	contract, err := r.contracts.GetByID(ctx, contractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return ErrContractNotFound
	}

	cfg := r.cfg.Get()
	format := opts.Format
	if format == "" {
		format = cfg.CodeOutputFormat
	}

	codes, err := r.discounts.ListByContract(ctx, contractID)
	if err != nil {
		return err
	}

	rows := make([]CodeRow, 0, len(codes))
	for _, code := range codes {
		redeemed, err := r.discounts.CountRedemptions(ctx, code.ID)
		if err != nil {
			return err
		}
		rows = append(rows, CodeRow{
			Code:        code.Code,
			Policy:      string(code.Policy),
			Kind:        string(code.Kind),
			Amount:      code.Amount,
			Redemptions: redeemed,
			CreatedAt:   code.CreatedAt,
		})
	}

	if !opts.FullHistory {
		rows = filterUsable(rows)
		if limit, capped := contract.SeatLimit(); capped {
			attached, err := r.contracts.CountLearners(ctx, contractID)
			if err != nil {
				return err
			}
			remaining := limit - int(attached)
			if remaining < 0 {
				remaining = 0
			}
			if len(rows) > remaining {
				rows = rows[:remaining]
			}
		}
	}

	if len(rows) > cfg.CodeOutputBatchLimit {
		rows = rows[:cfg.CodeOutputBatchLimit]
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		return writeCSV(w, rows)
	default:
		return writeFancy(w, rows)
	}
}

func filterUsable(rows []CodeRow) []CodeRow {
	usable := rows[:0:0]
	for _, row := range rows {
		if row.Redemptions == 0 {
			usable = append(usable, row)
		}
	}
	return usable
}

func writeCSV(w io.Writer, rows []CodeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "policy", "kind", "amount", "redemptions", "created_at"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Code,
			row.Policy,
			row.Kind,
			strconv.FormatInt(row.Amount, 10),
			strconv.FormatInt(row.Redemptions, 10),
			row.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFancy(w io.Writer, rows []CodeRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tPOLICY\tKIND\tAMOUNT\tREDEMPTIONS\tCREATED")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			row.Code,
			row.Policy,
			row.Kind,
			row.Amount,
			row.Redemptions,
			row.CreatedAt.Format("2006-01-02"),
		)
	}
	return tw.Flush()
}
