package main

import (
	"encoding/csv"
	"fmt"
	"github.com/alexflint/go-arg"
	"github.com/go-errors/errors"
	"github.com/hscells/priorshift"
	"github.com/hscells/priorshift/calibration"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/cheggaaa/pb.v1"
	"log"
	"os"
	"strconv"
)

var (
	name    = "shiftfit"
	version = "30.Aug.2026"
	author  = "Harry Scells"
)

type args struct {
	Method        string  `help:"Estimation method (em or bbse)" arg:"-m"`
	Soft          bool    `help:"Use soft probabilities in bbse" arg:"-s"`
	Tolerance     float64 `help:"Convergence tolerance for em" arg:"-t"`
	MaxIterations int     `help:"Maximum em iterations" arg:"-i"`
	SeedBBSE      bool    `help:"Seed em with a bbse estimate" arg:"-b"`
	Calibrate     string  `help:"Calibration method (none, temperature or isotonic)" arg:"-c"`
	Verbose       bool    `help:"Log estimation progress" arg:"-v"`
	Weights       string  `help:"Path to write the estimated multipliers" arg:"-w"`
	Adapted       string  `help:"Path to write shift-corrected probabilities" arg:"-o"`
	ValidLabels   string  `help:"Path to csv of validation labels" arg:"required,positional"`
	ValidProbs    string  `help:"Path to csv of validation posterior probabilities" arg:"required,positional"`
	TofitProbs    string  `help:"Path to csv of target posterior probabilities" arg:"required,positional"`
}

func (args) Version() string {
	return version
}

func (args) Description() string {
	return fmt.Sprintf(`%s
@ %s
# %s

estimate and correct label shift from classifier posterior probabilities`, name, author, version)
}

func main() {
	args := args{
		Method:        "em",
		Tolerance:     1e-6,
		MaxIterations: 100,
		Calibrate:     "none",
	}
	arg.MustParse(&args)

	validLabels, err := readMatrix(args.ValidLabels)
	if err != nil {
		log.Fatalln(err)
	}
	validProbs, err := readMatrix(args.ValidProbs)
	if err != nil {
		log.Fatalln(err)
	}
	tofitProbs, err := readMatrix(args.TofitProbs)
	if err != nil {
		log.Fatalln(err)
	}

	var factory priorshift.CalibratorFactory
	switch args.Calibrate {
	case "none":
	case "temperature":
		factory = calibration.NewTempScaling()
	case "isotonic":
		factory = calibration.NewIsotonic()
	default:
		log.Fatalf("%s is not a calibration method", args.Calibrate)
	}

	var adapter priorshift.Adapter
	switch args.Method {
	case "em":
		options := []func(*priorshift.EMAdapter){
			priorshift.EMVerbose(args.Verbose),
			priorshift.EMTolerance(args.Tolerance),
			priorshift.EMMaxIterations(args.MaxIterations),
		}
		if factory != nil {
			options = append(options, priorshift.EMCalibration(factory))
		}
		if args.SeedBBSE {
			options = append(options, priorshift.EMInit(priorshift.WeightsFromAdapter{
				Adapter: priorshift.NewBBSEAdapter(priorshift.BBSESoft(args.Soft)),
			}))
		}
		adapter = priorshift.NewEMAdapter(options...)
	case "bbse":
		options := []func(*priorshift.BBSEAdapter){
			priorshift.BBSESoft(args.Soft),
			priorshift.BBSEVerbose(args.Verbose),
		}
		if factory != nil {
			options = append(options, priorshift.BBSECalibration(factory))
		}
		adapter = priorshift.NewBBSEAdapter(options...)
	default:
		log.Fatalf("%s is not an estimation method", args.Method)
	}

	labels := priorshift.FromMatrix(validLabels)
	valid := priorshift.FromMatrix(validProbs)
	tofit := priorshift.FromMatrix(tofitProbs)
	if labels.Len() != valid.Len() {
		log.Fatalf("%d validation labels do not match %d validation probabilities", labels.Len(), valid.Len())
	}

	f, err := adapter.Adapt(labels, tofit, valid)
	if err != nil {
		log.Fatalln(err)
	}

	for i, m := range f.Multipliers {
		fmt.Printf("class %d multiplier %f\n", i, m)
	}

	if len(args.Weights) > 0 {
		if err := writeVector(args.Weights, f.Multipliers); err != nil {
			log.Fatalln(err)
		}
	}

	if len(args.Adapted) > 0 {
		adapted := f.Apply(tofit).Matrix()
		if err := writeMatrix(args.Adapted, adapted); err != nil {
			log.Fatalln(err)
		}
	}
}

// readMatrix loads a csv file of floats into a dense matrix.
func readMatrix(path string) (*mat.Dense, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0664)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if len(records) == 0 {
		return nil, errors.New(fmt.Sprintf("%s contains no rows", path))
	}
	rows, cols := len(records), len(records[0])
	m := mat.NewDense(rows, cols, nil)
	for i, record := range records {
		if len(record) != cols {
			return nil, errors.New(fmt.Sprintf("%s row %d has %d columns, expected %d", path, i, len(record), cols))
		}
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrap(err, 0)
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// writeMatrix writes a dense matrix to a csv file, one row per line, with a
// progress bar since adapted batches can be large.
func writeMatrix(path string, m *mat.Dense) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	rows, cols := m.Dims()
	bar := pb.StartNew(rows)
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'f', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, 0)
		}
		bar.Increment()
	}
	bar.Finish()
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// writeVector writes one float per line.
func writeVector(path string, v []float64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer f.Close()
	for _, x := range v {
		if _, err := fmt.Fprintln(f, strconv.FormatFloat(x, 'f', -1, 64)); err != nil {
			return errors.Wrap(err, 0)
		}
	}
	return nil
}
