package db

import (
	"fmt"
	"io"
	"text/tabwriter"
)

func ShowSlotsCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	slots, err := GetAllSlots(conn)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tUPDATED\tVALUE")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.UpdatedAt.Format("2006-01-02 15:04:05"), s.Value)
	}
	return tw.Flush()
}

func ShowEventsCLI(dbPath string, limit int, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, err := GetRecentEvents(conn, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAT\tKIND\tVALUE")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\n", e.ID, e.At.Format("2006-01-02 15:04:05"), e.Kind, e.Value)
	}
	return tw.Flush()
}

// ResetSlotCLI forgets a persisted value, e.g. a learned capacity that
// no longer matches the installed battery.
func ResetSlotCLI(dbPath, key string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	if err := DeleteSlotWithTx(tx, key); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
