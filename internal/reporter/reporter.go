package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"order-saga-client/internal/api"
	"order-saga-client/internal/apierr"
	"order-saga-client/internal/reconcile"
	"order-saga-client/internal/seed"
	"order-saga-client/internal/utils"
	"order-saga-client/internal/workflow"
)

var separator = strings.Repeat("=", 80)

func header(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, separator)
}

// PrintOutcome prints the result of a create-order submission
func PrintOutcome(w io.Writer, outcome api.Outcome) {
	header(w, "ORDER SUBMISSION")
	fmt.Fprintf(w, "Outcome:            %s\n", outcome.Kind)
	fmt.Fprintf(w, "HTTP Status:        %d\n", outcome.HTTPStatus)
	if outcome.SagaExecutionID != "" {
		fmt.Fprintf(w, "Saga Execution ID:  %s\n", outcome.SagaExecutionID)
	}
	if outcome.Message != "" {
		fmt.Fprintf(w, "Message:            %s\n", outcome.Message)
	}
	if outcome.Order != nil {
		fmt.Fprintln(w, separator)
		printOrderBody(w, *outcome.Order)
	}
	fmt.Fprintln(w, separator)
}

// PrintOrder prints one order with its items
func PrintOrder(w io.Writer, order api.Order) {
	header(w, "ORDER "+order.OrderNumber)
	printOrderBody(w, order)
	fmt.Fprintln(w, separator)
}

func printOrderBody(w io.Writer, order api.Order) {
	fmt.Fprintf(w, "ID:                 %s\n", order.ID)
	fmt.Fprintf(w, "Number:             %s\n", order.OrderNumber)
	fmt.Fprintf(w, "Status:             %s\n", order.Status)
	fmt.Fprintf(w, "Customer:           %s <%s>\n", order.CustomerName, order.CustomerEmail)
	fmt.Fprintf(w, "Total:              %s\n", order.TotalAmount.StringFixed(2))
	if order.PaymentID != "" {
		fmt.Fprintf(w, "Payment ID:         %s\n", order.PaymentID)
	}
	if order.RiskLevel != "" {
		fmt.Fprintf(w, "Risk:               %s\n", order.RiskLevel)
	}
	fmt.Fprintf(w, "Created:            %s\n", formatTime(order.CreatedAt))
	fmt.Fprintf(w, "Updated:            %s\n", formatTime(order.UpdatedAt))

	if len(order.Items) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nPRODUCT\tQTY\tUNIT PRICE\tSUBTOTAL")
	for _, item := range order.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", item.ProductName, item.Quantity,
			item.UnitPrice.StringFixed(2), item.Subtotal.StringFixed(2))
	}
	tw.Flush()
}

// PrintOrders prints a one-line-per-order table
func PrintOrders(w io.Writer, title string, orders []api.Order) {
	header(w, fmt.Sprintf("%s (%d)", title, len(orders)))
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders found.")
		fmt.Fprintln(w, separator)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tRISK\tTOTAL\tCUSTOMER\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.OrderNumber, o.Status, o.RiskLevel,
			o.TotalAmount.StringFixed(2), o.CustomerName, formatTime(o.CreatedAt))
	}
	tw.Flush()
	fmt.Fprintln(w, separator)
}

// PrintDashboard prints the status counters and the most recent orders
func PrintDashboard(w io.Writer, d workflow.Dashboard) {
	header(w, "DASHBOARD")
	fmt.Fprintf(w, "Total Orders:       %d\n", d.Total)
	fmt.Fprintf(w, "Paid:               %d\n", d.Paid)
	fmt.Fprintf(w, "Pending:            %d\n", d.Pending)
	fmt.Fprintf(w, "Payment Failed:     %d\n", d.PaymentFailed)
	fmt.Fprintf(w, "Canceled:           %d\n", d.Canceled)
	fmt.Fprintf(w, "High Risk:          %d\n", d.HighRisk)
	fmt.Fprintln(w, separator)
	if len(d.Recent) > 0 {
		PrintOrders(w, "RECENT ORDERS", d.Recent)
	}
}

// PrintReconcile prints a reconciliation summary
func PrintReconcile(w io.Writer, result *reconcile.Result) {
	header(w, "RECONCILIATION RESULTS")
	fmt.Fprintf(w, "Source:             %s\n", result.Source)
	fmt.Fprintf(w, "Total Orders:       %d\n", result.Total)
	fmt.Fprintf(w, "Refreshed:          %d\n", result.Succeeded)
	fmt.Fprintf(w, "Failed:             %d\n", result.Failed)
	fmt.Fprintf(w, "Status Changes:     %d\n", len(result.Changes))
	for _, c := range result.Changes {
		fmt.Fprintf(w, "  %s  %s -> %s\n", c.OrderNumber, c.From, c.To)
	}
	if len(result.Errors) > 0 {
		ids := make([]string, 0, len(result.Errors))
		for id := range result.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintln(w, "Errors:")
		for _, id := range ids {
			fmt.Fprintf(w, "  %s: %s\n", id, result.Errors[id])
		}
	}
	fmt.Fprintln(w, separator)
}

// PrintSeed prints a batch submission summary
func PrintSeed(w io.Writer, result *seed.Result) {
	header(w, "SEED RESULTS")
	fmt.Fprintf(w, "Total Orders:       %d\n", result.TotalOrders)
	fmt.Fprintf(w, "Total Batches:      %d\n", len(result.BatchResults))
	fmt.Fprintf(w, "Total Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Avg Submission:     %v\n", result.Stats()["avgSubmissionTime"])
	printCounters(w, "Outcomes", result.Outcomes)
	fmt.Fprintln(w, separator)
}

// PrintError prints a normalized error with its field details
func PrintError(w io.Writer, err *apierr.APIError) {
	fmt.Fprintf(w, "Error [%s]: %s\n", err.Kind(), err.Message)
	for _, field := range err.DetailFields() {
		fmt.Fprintf(w, "  %s: %s\n", field, err.Details[field])
	}
}

// PrintMetrics prints per-endpoint call statistics and outcome counters
func PrintMetrics(w io.Writer, snapshot utils.MetricsSnapshot) {
	header(w, "CLIENT METRICS")
	if len(snapshot.APICalls) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ENDPOINT\tCALLS\tOK\tFAILED\tAVG\tMAX")
		for _, name := range snapshot.Endpoints() {
			m := snapshot.APICalls[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n", name, m.TotalCalls, m.SuccessfulCalls, m.FailedCalls,
				m.AvgDuration.Round(time.Millisecond), m.MaxDuration.Round(time.Millisecond))
		}
		tw.Flush()
	}
	printCounters(w, "Outcomes", snapshot.Outcomes)
	printCounters(w, "Error Kinds", snapshot.ErrorKinds)
	fmt.Fprintln(w, separator)
}

func printCounters(w io.Writer, title string, counters map[string]int) {
	if len(counters) == 0 {
		return
	}
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, counters[k])
	}
}

func formatTime(t api.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// SaveJSON writes v as indented JSON to filename
func SaveJSON(v interface{}, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	return nil
}
