package testbatches

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Header is the column layout of generated tables.
var Header = []string{ //nolint:gochecknoglobals // fixed test layout
	"customerID", "gender", "SeniorCitizen", "Partner", "tenure", "Contract",
	"InternetService", "OnlineSecurity", "TechSupport", "PaperlessBilling",
	"PaymentMethod", "MonthlyCharges", "TotalCharges",
}

var ( //nolint:gochecknoglobals // category pools
	genders   = []string{"Female", "Male"}
	yesNo     = []string{"Yes", "No"}
	contracts = []string{"Month-to-month", "One year", "Two year"}
	internet  = []string{"DSL", "Fiber optic", "No"}
	payments  = []string{"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}
)

// corruptions turn a valid row into one the service must reject.
var corruptions = []func(row map[string]string){ //nolint:gochecknoglobals // fixed set
	func(row map[string]string) { row["tenure"] = "n/a" },
	func(row map[string]string) { row["tenure"] = "-5" },
	func(row map[string]string) { row["Contract"] = "" },
	func(row map[string]string) { row["SeniorCitizen"] = "2" },
}

// Dataset is a generated customer table.
type Dataset struct {
	Data    []byte
	IDs     []string // customer IDs in row order
	BadRows []int    // zero-based indices of corrupted rows, ascending
}

// Generate builds a table with rows customers, badRows of which are invalid.
func Generate(seed uint64, rows, badRows int) (*Dataset, error) {
	if rows < 0 || badRows < 0 || badRows > rows {
		return nil, fmt.Errorf("invalid sizes: rows=%d badRows=%d", rows, badRows)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	bad := rng.Perm(rows)[:badRows]
	sort.Ints(bad)
	isBad := make(map[int]bool, len(bad))
	for _, i := range bad {
		isBad[i] = true
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}

	ds := &Dataset{IDs: make([]string, 0, rows), BadRows: bad}
	for i := 0; i < rows; i++ {
		row := customer(rng)
		if isBad[i] {
			corruptions[i%len(corruptions)](row)
		}
		ds.IDs = append(ds.IDs, row["customerID"])

		rec := make([]string, len(Header))
		for j, col := range Header {
			rec[j] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	ds.Data = buf.Bytes()
	return ds, nil
}

func customer(rng *rand.Rand) map[string]string {
	tenure := rng.IntN(73)
	monthly := 18.25 + rng.Float64()*100
	total := ""
	if tenure > 0 {
		total = strconv.FormatFloat(monthly*float64(tenure), 'f', 2, 64)
	}
	svc := internet[rng.IntN(len(internet))]
	security, support := pick(rng, yesNo), pick(rng, yesNo)
	if svc == "No" {
		security, support = "No internet service", "No internet service"
	}
	return map[string]string{
		"customerID":       strings.ToUpper(uuid.NewString()[:10]),
		"gender":           pick(rng, genders),
		"SeniorCitizen":    strconv.Itoa(rng.IntN(2)),
		"Partner":          pick(rng, yesNo),
		"tenure":           strconv.Itoa(tenure),
		"Contract":         pick(rng, contracts),
		"InternetService":  svc,
		"OnlineSecurity":   security,
		"TechSupport":      support,
		"PaperlessBilling": pick(rng, yesNo),
		"PaymentMethod":    pick(rng, payments),
		"MonthlyCharges":   strconv.FormatFloat(monthly, 'f', 2, 64),
		"TotalCharges":     total,
	}
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}
