package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/esimov/water-fluid/controller"
	"github.com/esimov/water-fluid/detector"
	"github.com/esimov/water-fluid/terminal"
	"github.com/esimov/water-fluid/websocket"
)

func main() {
	s := controller.DefaultSettings()

	mode := flag.String("mode", "terminal", "front-end to run (terminal|server)")
	fps := flag.Int("fps", 30, "frames per second")
	addr := flag.String("a", ":5000", "address to serve(host:port)")
	prefix := flag.String("p", "/", "prefix path under")
	root := flag.String("r", "web", "root path to serve")
	cascade := flag.String("cascade", "", "pigo facefinder cascade, enables face driven injection")
	puploc := flag.String("puploc", "", "pigo puploc cascade, also injects at the pupils (requires -cascade)")
	logPath := flag.String("log", "debug.log", "debug log of the terminal front-end")

	flag.IntVar(&s.GridSize, "grid", s.GridSize, "grid resolution")
	flag.Float64Var(&s.Diffusion, "diff", s.Diffusion, "density diffusion rate")
	flag.Float64Var(&s.Viscosity, "visc", s.Viscosity, "fluid viscosity")
	flag.Float64Var(&s.TimeStep, "dt", s.TimeStep, "simulation time step")
	flag.Float64Var(&s.DensityAmount, "amount", s.DensityAmount, "density added per pointer event")
	flag.Float64Var(&s.VelocityScale, "force", s.VelocityScale, "pointer movement to velocity factor")
	flag.Float64Var(&s.DensityDecay, "ddecay", s.DensityDecay, "density decay per frame (1 disables)")
	flag.Float64Var(&s.VelocityDecay, "vdecay", s.VelocityDecay, "velocity decay per frame (1 disables)")
	flag.Float64Var(&s.Vorticity, "vorticity", s.Vorticity, "vorticity confinement strength")
	flag.Float64Var(&s.ColorIntensity, "intensity", s.ColorIntensity, "color intensity")
	flag.IntVar(&s.FrameSkip, "skip", s.FrameSkip, "frames skipped between simulation steps")
	flag.IntVar(&s.Particles, "particles", s.Particles, "number of tracer particles")
	flag.BoolVar(&s.ShowVelocity, "velocity", s.ShowVelocity, "overlay the velocity field")
	flag.Parse()

	ctrl, err := controller.New(s)
	if err != nil {
		log.Fatalln(err)
	}

	switch *mode {
	case "terminal":
		term, err := terminal.New(ctrl, *fps, *logPath)
		if err != nil {
			log.Fatalln(err)
		}
		if err := term.Render(); err != nil {
			log.Fatalln(err)
		}
	case "server":
		var det *detector.Detector
		if *cascade != "" {
			if det, err = detector.Load(*cascade); err != nil {
				log.Fatalln(err)
			}
			if *puploc != "" {
				if err := det.LoadPupils(*puploc); err != nil {
					log.Fatalln(err)
				}
			}
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		params := websocket.HttpParams{
			Address: *addr,
			Prefix:  *prefix,
			Root:    *root,
		}
		if err := websocket.NewServer(params, ctrl, *fps, det).Run(ctx); err != nil {
			log.Fatalln(err)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}
