// Command geoconv converts positions between WGS84 cartographic and ECEF
// coordinates and prints the local East-North-Up frame.
//
//	geoconv -to-ecef "-105.27,40.015,1624"
//	geoconv -from-ecef "-1283000,-4726000,4077000"
//	geoconv -enu "-105.27,40.015"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("geoconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	toEcef := fs.String("to-ecef", "", "cartographic lon,lat[,height] to convert to ECEF")
	fromEcef := fs.String("from-ecef", "", "ECEF x,y,z in metres to convert to cartographic")
	enu := fs.String("enu", "", "cartographic lon,lat[,height] whose East-North-Up frame is printed")
	logLevel := fs.String("log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: *logLevel, Output: stderr})
	ctx := context.Background()

	var err error
	switch {
	case *toEcef != "":
		err = printEcef(stdout, *toEcef)
	case *fromEcef != "":
		err = printCartographic(stdout, *fromEcef)
	case *enu != "":
		err = printFrame(stdout, *enu)
	default:
		fs.Usage()
		err = errors.New("one of -to-ecef, -from-ecef or -enu is required")
	}
	if err != nil {
		log.Error(ctx, "conversion failed", logging.Err(err))
	}
	return err
}

func printEcef(w io.Writer, in string) error {
	c, err := geodesy.ParseCartographic(in)
	if err != nil {
		return err
	}
	p := geodesy.CartographicToEcef(c)
	_, err = fmt.Fprintf(w, "%.3f,%.3f,%.3f\n", p.X, p.Y, p.Z)
	return err
}

func printCartographic(w io.Writer, in string) error {
	p, err := parseVec(in)
	if err != nil {
		return err
	}
	c, ok := geodesy.EcefToCartographic(p)
	if !ok {
		return fmt.Errorf("%q is too close to the centre of the Earth", in)
	}
	lon, lat, h := c.Degrees()
	_, err = fmt.Fprintf(w, "%.9f,%.9f,%.3f\n", lon, lat, h)
	return err
}

func printFrame(w io.Writer, in string) error {
	c, err := geodesy.ParseCartographic(in)
	if err != nil {
		return err
	}
	p := geodesy.CartographicToEcef(c)
	rot := geodesy.EastNorthUpRotation(p)
	for i, name := range []string{"east", "north", "up"} {
		v := rot.Column(i)
		if _, err := fmt.Fprintf(w, "%-6s%.9f,%.9f,%.9f\n", name, v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "%-6s%.3f,%.3f,%.3f\n", "origin", p.X, p.Y, p.Z)
	return err
}

func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("parse ECEF %q: want x,y,z", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("parse ECEF %q: %w", s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vec{}, fmt.Errorf("parse ECEF %q: non-finite component", s)
		}
		vals[i] = v
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
