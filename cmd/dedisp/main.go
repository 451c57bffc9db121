package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	dedisp "github.com/TRASAL/dedisp"
	"github.com/TRASAL/dedisp/autotune"
	"github.com/TRASAL/dedisp/backend/cpu"
	"github.com/TRASAL/dedisp/kernelgen"
	"github.com/TRASAL/dedisp/reference"
	"github.com/TRASAL/dedisp/search"
)

// loadObservation builds an Observation from the flags common to every
// subcommand.
func loadObservation(c *cli.Context) (dedisp.Observation, error) {
	return dedisp.NewObservation(
		c.Int("nr-channels"),
		c.Float64("min-freq"),
		c.Float64("channel-bandwidth"),
		c.Int("nr-subbands"),
		dedisp.DMRange{Count: c.Int("dm-coarse-count"), First: c.Float64("dm-coarse-first"), Step: c.Float64("dm-coarse-step")},
		dedisp.DMRange{Count: c.Int("dm-fine-count"), First: c.Float64("dm-fine-first"), Step: c.Float64("dm-fine-step")},
		c.Int("nr-beams"),
		c.Int("nr-synthesized-beams"),
		c.Int("nr-samples-per-batch"),
		c.Int("downsampling"),
		c.Int("padding-bytes"),
	)
}

func modeFromFlag(name string) (dedisp.Mode, error) {
	switch name {
	case "direct":
		return dedisp.ModeDirect, nil
	case "step_one":
		return dedisp.ModeStepOne, nil
	case "step_two":
		return dedisp.ModeStepTwo, nil
	default:
		return 0, dedisp.ErrMutuallyExclusiveMode
	}
}

// tune runs the autotuner for one (device, mode) point and persists the
// winner to the tuning catalogue.
func tune(c *cli.Context) error {
	obs, err := loadObservation(c)
	if err != nil {
		return err
	}
	mode, err := modeFromFlag(c.String("mode"))
	if err != nil {
		return err
	}

	tp := dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}
	bounds := dedisp.TuningBounds{
		MinThreads: 1, MaxThreads: 1024,
		MaxRows: 32, MaxColumns: 1024,
		MaxItems: 64, MaxSampleItems: 8, MaxDMItems: 8,
		MaxUnroll: 16, VectorWidth: c.Int("vector-width"),
	}

	candidates := autotune.Enumerate(bounds, obs, mode, tp, c.Int("base-live-registers"))
	if len(candidates) == 0 {
		return dedisp.ErrNoCandidates
	}
	log.Printf("enumerated %d legal configurations for mode %s\n", len(candidates), mode)

	shifts := dedisp.ComputeShifts(obs)
	if mode == dedisp.ModeStepTwo {
		shifts = dedisp.ComputeShiftsStepTwo(obs)
	}
	dispersedStride := obs.PadSamples(obs.NrSamplesPerDispersedBatch(shifts, mode == dedisp.ModeStepOne), 4)
	outputStride := obs.PadSamples(obs.NrSamplesPerBatch/obs.Downsampling, 4)

	backend := cpu.New(obs, dispersedStride, outputStride, outputStride)

	gen := func(cfg dedisp.TuningPointConfig) (string, error) {
		params := kernelgen.Params{Config: cfg, Obs: obs, Types: tp, Shifts: shifts}
		switch mode {
		case dedisp.ModeStepOne:
			return kernelgen.GenerateStepOne(params)
		case dedisp.ModeStepTwo:
			return kernelgen.GenerateStepTwo(params)
		default:
			return kernelgen.GenerateDirect(params)
		}
	}

	entry := dedisp.EntryDirect
	switch mode {
	case dedisp.ModeStepOne:
		entry = dedisp.EntryStepOne
	case dedisp.ModeStepTwo:
		entry = dedisp.EntryStepTwo
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	launch := func(ctx context.Context, program dedisp.Program, cfg dedisp.TuningPointConfig) (dedisp.Event, error) {
		input, err := backend.Alloc(ctx, dedisp.MemReadOnly, obs.NrBeams*obs.NrChannels*dispersedStride*4)
		if err != nil {
			return nil, err
		}
		output, err := backend.Alloc(ctx, dedisp.MemWriteOnly, obs.NrSynthesizedBeams*obs.DMFine.Count*outputStride*4)
		if err != nil {
			return nil, err
		}
		zapped, err := backend.Alloc(ctx, dedisp.MemReadOnly, obs.NrChannels*4)
		if err != nil {
			return nil, err
		}
		shiftsBuf, err := backend.Alloc(ctx, dedisp.MemReadOnly, len(shifts)*4)
		if err != nil {
			return nil, err
		}

		var args []dedisp.Buffer
		switch entry {
		case dedisp.EntryStepOne:
			args = []dedisp.Buffer{input, output, zapped, shiftsBuf}
		case dedisp.EntryStepTwo:
			beamMapping, err := backend.Alloc(ctx, dedisp.MemReadOnly, obs.NrSynthesizedBeams*obs.NrSubbands*4)
			if err != nil {
				return nil, err
			}
			args = []dedisp.Buffer{input, output, beamMapping, shiftsBuf}
		default:
			beamMapping, err := backend.Alloc(ctx, dedisp.MemReadOnly, obs.NrSynthesizedBeams*obs.NrChannels*4)
			if err != nil {
				return nil, err
			}
			args = []dedisp.Buffer{input, output, beamMapping, zapped, shiftsBuf}
		}
		return backend.Enqueue(ctx, program, dedisp.Range3D{}, dedisp.Range3D{}, args)
	}

	workload := autotune.Workload{
		Beams: obs.NrSynthesizedBeams,
		DMs: mode.NrDMs(obs),
		NonZappedChans: obs.NrChannels,
		Samples: obs.NrSamplesPerBatch / obs.Downsampling,
		FlopsPerSample: 1,
	}

	survey, winner, err := autotune.Tune(ctx, backend, entry, gen, launch, candidates, c.Int("nr-iterations"), workload, time.Now)
	if err != nil {
		return err
	}

	cat, err := dedisp.LoadCatalogue(c.String("catalogue"))
	if err != nil {
		if !errors.Is(err, dedisp.ErrCatalogueFileNotFound) {
			return err
		}
		cat = dedisp.NewCatalogue()
	}
	cat.Put(c.String("device-name"), mode.NrDMs(obs), winner)
	if err := dedisp.SaveCatalogue(c.String("catalogue"), cat); err != nil {
		return err
	}

	if c.Bool("survey") {
		for _, m := range survey {
			fmt.Printf("%+v\n", m)
		}
	} else {
		fmt.Printf("%d %+v\n", mode.NrDMs(obs), winner)
	}

	return nil
}

// run loads the winning configuration from the catalogue and generates the
// corresponding kernel source to stdout: the production driver path, as
// opposed to tune's enumerate-and-measure path.
func run(c *cli.Context) error {
	obs, err := loadObservation(c)
	if err != nil {
		return err
	}
	mode, err := modeFromFlag(c.String("mode"))
	if err != nil {
		return err
	}

	cat, err := dedisp.LoadCatalogue(c.String("catalogue"))
	if err != nil {
		return err
	}
	cfg, ok := cat.Lookup(c.String("device-name"), mode.NrDMs(obs))
	if !ok {
		return dedisp.ErrCatalogueLookupMiss
	}

	tp := dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}
	shifts := dedisp.ComputeShifts(obs)
	if mode == dedisp.ModeStepTwo {
		shifts = dedisp.ComputeShiftsStepTwo(obs)
	}

	if c.Bool("dump-shifts") {
		for i, s := range shifts {
			fmt.Printf("%d %g\n", i, s)
		}
		return nil
	}

	params := kernelgen.Params{Config: cfg, Obs: obs, Types: tp, Shifts: shifts}

	var source string
	switch mode {
	case dedisp.ModeStepOne:
		source, err = kernelgen.GenerateStepOne(params)
	case dedisp.ModeStepTwo:
		source, err = kernelgen.GenerateStepTwo(params)
	default:
		source, err = kernelgen.GenerateDirect(params)
	}
	if err != nil {
		return err
	}

	fmt.Println(source)
	return nil
}

// dedisperse loads real dispersed-input data, runs the catalogue's winning
// configuration against it through a Backend, and reports how the result
// compares to the scalar reference algorithm.
func dedisperse(c *cli.Context) error {
	obs, err := loadObservation(c)
	if err != nil {
		return err
	}
	mode, err := modeFromFlag(c.String("mode"))
	if err != nil {
		return err
	}

	cat, err := dedisp.LoadCatalogue(c.String("catalogue"))
	if err != nil {
		return err
	}
	cfg, ok := cat.Lookup(c.String("device-name"), mode.NrDMs(obs))
	if !ok {
		return dedisp.ErrCatalogueLookupMiss
	}

	beamWidth := obs.NrChannels
	if mode == dedisp.ModeStepTwo {
		beamWidth = obs.NrSubbands
	}
	beamMapping, err := search.ReadBeamMapping(c.String("beam-mapping"), beamWidth, obs.NrBeams)
	if err != nil {
		return err
	}
	zap, err := search.ReadZappedChannels(c.String("zapped-channels"), obs.NrChannels)
	if err != nil {
		return err
	}

	shifts := dedisp.ComputeShifts(obs)
	if mode == dedisp.ModeStepTwo {
		shifts = dedisp.ComputeShiftsStepTwo(obs)
	}

	config, err := loadTileDBConfig(c.String("config-uri"))
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := newTileDBContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	src, err := dedisp.OpenDispersedInputSource(ctx, config, c.String("input-uri"), c.Bool("in-memory"))
	if err != nil {
		return err
	}
	defer src.Close()

	dispersedStride := obs.PadSamples(obs.NrSamplesPerDispersedBatch(shifts, mode == dedisp.ModeStepOne), 4)
	outputStride := obs.PadSamples(obs.NrSamplesPerBatch/obs.Downsampling, 4)

	// Step two consumes already-subbanded (step-one output) data, not raw
	// dispersed input; every other mode reads the dispersed input directly.
	inputSize := obs.DispersedBufferBytes(shifts, 4)
	inputStride := dispersedStride
	if mode == dedisp.ModeStepTwo {
		inputSize = obs.SubbandedBufferBytes(4)
		inputStride = outputStride
	}

	inputBytes := make([]byte, inputSize)
	if _, err := io.ReadFull(src, inputBytes); err != nil {
		return err
	}

	backend := cpu.New(obs, dispersedStride, outputStride, outputStride)
	params := kernelgen.Params{Config: cfg, Obs: obs, Types: dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}, Shifts: shifts}

	var source string
	var entry dedisp.Entry
	var args []dedisp.Buffer

	bgCtx := context.Background()

	input, err := backend.Alloc(bgCtx, dedisp.MemReadOnly, len(inputBytes))
	if err != nil {
		return err
	}
	if _, err := backend.Write(bgCtx, input, inputBytes, true); err != nil {
		return err
	}

	zapBuf, err := backend.Alloc(bgCtx, dedisp.MemReadOnly, obs.NrChannels*4)
	if err != nil {
		return err
	}
	if _, err := backend.Write(bgCtx, zapBuf, zapMaskBytes(zap), true); err != nil {
		return err
	}

	beamMappingBuf, err := backend.Alloc(bgCtx, dedisp.MemReadOnly, obs.NrSynthesizedBeams*beamWidth*4)
	if err != nil {
		return err
	}
	if _, err := backend.Write(bgCtx, beamMappingBuf, beamMappingBytes(beamMapping), true); err != nil {
		return err
	}

	shiftsBuf, err := backend.Alloc(bgCtx, dedisp.MemReadOnly, len(shifts)*4)
	if err != nil {
		return err
	}
	if _, err := backend.Write(bgCtx, shiftsBuf, float32Bytes(shifts), true); err != nil {
		return err
	}

	var outputSize int
	switch mode {
	case dedisp.ModeStepOne:
		entry = dedisp.EntryStepOne
		source, err = kernelgen.GenerateStepOne(params)
		args = []dedisp.Buffer{input, nil, zapBuf, shiftsBuf}
		outputSize = obs.SubbandedBufferBytes(4)
	case dedisp.ModeStepTwo:
		entry = dedisp.EntryStepTwo
		source, err = kernelgen.GenerateStepTwo(params)
		args = []dedisp.Buffer{input, nil, beamMappingBuf, shiftsBuf}
		outputSize = obs.DedispersedBufferBytes(4) * obs.DMCoarse.Count
	default:
		entry = dedisp.EntryDirect
		source, err = kernelgen.GenerateDirect(params)
		args = []dedisp.Buffer{input, nil, beamMappingBuf, zapBuf, shiftsBuf}
		outputSize = obs.DedispersedBufferBytes(4)
	}
	if err != nil {
		return err
	}

	output, err := backend.Alloc(bgCtx, dedisp.MemWriteOnly, outputSize)
	if err != nil {
		return err
	}
	args[1] = output

	program, err := backend.Compile(bgCtx, entry, source)
	if err != nil {
		return err
	}
	ev, err := backend.Enqueue(bgCtx, program, dedisp.Range3D{}, dedisp.Range3D{}, args)
	if err != nil {
		return err
	}
	if err := ev.Wait(bgCtx); err != nil {
		return err
	}

	got := make([]byte, outputSize)
	if _, err := backend.Read(bgCtx, got, output, true); err != nil {
		return err
	}

	want := referenceOutput(mode, obs, zap, beamMapping, shifts, inputBytes, inputStride, outputStride)
	cmp := reference.Compare(floatsFromBytes(want), floatsFromBytes(got), reference.Tolerance)
	fmt.Printf("%d/%d samples out of tolerance (%.4f%%)\n", cmp.WrongSamples, cmp.TotalSamples, cmp.Percentage())
	if !cmp.Passed() {
		return dedisp.ErrWrongSamples
	}
	return nil
}

// referenceOutput runs the scalar ground-truth algorithm for mode against the
// same raw input bytes the backend was given, for the correctness comparison.
func referenceOutput(mode dedisp.Mode, obs dedisp.Observation, zap dedisp.ZapMask, beamMapping dedisp.BeamMapping, shifts []float32, inputBytes []byte, inputStride, outputStride int) []byte {
	input := floatsFromBytes(inputBytes)
	var out []float32
	switch mode {
	case dedisp.ModeStepOne:
		out = reference.StepOne[float32, float32, float32](obs, zap, shifts, input, inputStride, outputStride)
	case dedisp.ModeStepTwo:
		out = reference.StepTwo[float32, float32, float32](obs, beamMapping, shifts, input, inputStride, outputStride)
	default:
		out = reference.Direct[float32, float32, float32](obs, zap, beamMapping, shifts, input, inputStride, outputStride)
	}
	return float32Bytes(out)
}

func floatsFromBytes(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func float32Bytes(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func zapMaskBytes(mask dedisp.ZapMask) []byte {
	out := make([]byte, len(mask)*4)
	for i, z := range mask {
		v := uint32(0)
		if z != 0 {
			v = 1
		}
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func beamMappingBytes(bm dedisp.BeamMapping) []byte {
	out := make([]byte, len(bm.Entries)*4)
	for i, e := range bm.Entries {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(e))
	}
	return out
}

// findCatalogues searches a directory tree or object store for tuning
// catalogue files, using the TileDB VFS trawl of the search package.
func findCatalogues(c *cli.Context) error {
	config, err := loadTileDBConfig(c.String("config-uri"))
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := newTileDBContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	found, err := search.FindCatalogues(ctx, config, c.String("uri"))
	if err != nil {
		return err
	}
	for _, f := range found {
		fmt.Println(f)
	}
	return nil
}

func observationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "nr-channels", Usage: "Number of frequency channels."},
		&cli.Float64Flag{Name: "min-freq", Usage: "Centre frequency of channel 0 (MHz)."},
		&cli.Float64Flag{Name: "channel-bandwidth", Usage: "Channel bandwidth (MHz)."},
		&cli.IntFlag{Name: "nr-subbands", Usage: "Number of subbands (0 for direct mode)."},
		&cli.IntFlag{Name: "dm-coarse-count", Usage: "Coarse DM grid size."},
		&cli.Float64Flag{Name: "dm-coarse-first", Usage: "Coarse DM grid first value."},
		&cli.Float64Flag{Name: "dm-coarse-step", Usage: "Coarse DM grid step."},
		&cli.IntFlag{Name: "dm-fine-count", Usage: "Fine DM grid size."},
		&cli.Float64Flag{Name: "dm-fine-first", Usage: "Fine DM grid first value."},
		&cli.Float64Flag{Name: "dm-fine-step", Usage: "Fine DM grid step."},
		&cli.IntFlag{Name: "nr-beams", Usage: "Number of receiver beams."},
		&cli.IntFlag{Name: "nr-synthesized-beams", Usage: "Number of synthesized beams."},
		&cli.IntFlag{Name: "nr-samples-per-batch", Usage: "Output samples per batch."},
		&cli.IntFlag{Name: "downsampling", Value: 1, Usage: "Time downsampling factor."},
		&cli.IntFlag{Name: "padding-bytes", Value: 64, Usage: "Row-stride padding granularity, in bytes."},
		&cli.StringFlag{Name: "mode", Value: "direct", Usage: "direct, step_one or step_two."},
		&cli.StringFlag{Name: "device-name", Required: true, Usage: "Device name key in the tuning catalogue."},
		&cli.StringFlag{Name: "catalogue", Required: true, Usage: "Path to the tuning catalogue file."},
	}
}

func main() {
	app := &cli.App{
		Name: "dedisp",
		Usage: "incoherent dedispersion: autotune, run and manage the tuning catalogue",
		Commands: []*cli.Command{
			{
				Name: "tune",
				Usage: "enumerate, compile, time and persist the winning configuration",
				Flags: append(observationFlags(),
					&cli.IntFlag{Name: "nr-iterations", Value: 5, Usage: "Timed launches per candidate."},
					&cli.IntFlag{Name: "vector-width", Value: 0, Usage: "Required divisor of threads_d0*threads_d1, 0 disables the check."},
					&cli.IntFlag{Name: "base-live-registers", Value: 8, Usage: "Estimated always-live registers besides the accumulators."},
					&cli.BoolFlag{Name: "survey", Usage: "Emit every measurement instead of only the winner."},
				),
				Action: tune,
			},
			{
				Name: "run",
				Usage: "load the catalogue's winning configuration and emit kernel source",
				Flags: append(observationFlags(),
					&cli.BoolFlag{Name: "dump-shifts", Usage: "Print the per-channel/subband shift table instead of kernel source."},
				),
				Action: run,
			},
			{
				Name: "find-catalogues",
				Usage: "recursively search a directory or object store for tuning catalogue files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
				},
				Action: findCatalogues,
			},
			{
				Name: "dedisperse",
				Usage: "run the catalogue's winning configuration against real input data and compare to the reference algorithm",
				Flags: append(observationFlags(),
					&cli.StringFlag{Name: "input-uri", Required: true, Usage: "Path or object-store URI of the dispersed (or, for step_two, subbanded) input."},
					&cli.StringFlag{Name: "config-uri", Usage: "TileDB config for the input URI's VFS."},
					&cli.BoolFlag{Name: "in-memory", Usage: "Pull the whole input file into memory before reading."},
					&cli.StringFlag{Name: "zapped-channels", Required: true, Usage: "Path to the zapped-channels list."},
					&cli.StringFlag{Name: "beam-mapping", Required: true, Usage: "Path to the beam-mapping table."},
				),
				Action: dedisperse,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
