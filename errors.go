package dedisp

import (
	"errors"
)

var ErrSubbandsDontDivideChannels = errors.New("Number Of Subbands Does Not Divide Number Of Channels")
var ErrZeroChannels = errors.New("Observation Has Zero Channels")
var ErrZeroSamplesPerBatch = errors.New("Observation Has Zero Samples Per Batch")
var ErrZeroDownsampling = errors.New("Downsampling Factor Must Be >= 1")
var ErrBeamMappingOutOfRange = errors.New("Beam Mapping Entry Out Of Range")
var ErrCatalogueFileNotFound = errors.New("Tuning Catalogue File Not Found")
var ErrCatalogueLine = errors.New("Malformed Tuning Catalogue Line")
var ErrCatalogueLookupMiss = errors.New("No Tuning Point Configuration For Device/DM-Count")
var ErrSplitBatchesUnsupported = errors.New("split_batches Mode Is Not Implemented")
var ErrIllegalConfiguration = errors.New("Tuning Point Configuration Violates An Invariant")
var ErrUnrollDoesNotDivide = errors.New("Unroll Factor Does Not Divide Channel/Subband Count")
var ErrVectorWidthViolation = errors.New("threads_d0 * threads_d1 Is Not A Multiple Of vector_width")
var ErrDeviceMemory = errors.New("Device Memory Error")
var ErrDeviceFatal = errors.New("Fatal Device Error")
var ErrKernelCompile = errors.New("Kernel Compile Failure")
var ErrKernelRuntime = errors.New("Kernel Runtime Error")
var ErrMutuallyExclusiveMode = errors.New("Exactly One Of single_step, step_one, step_two Must Be Selected")
var ErrNoCandidates = errors.New("No Legal Tuning Point Configurations Were Enumerated")
var ErrCreateSurveyTdb = errors.New("Error Creating Autotune Survey TileDB Array")
var ErrWriteSurveyTdb = errors.New("Error Writing Autotune Survey TileDB Array")
var ErrCreateArchiveTdb = errors.New("Error Creating Dedispersed Output TileDB Archive")
var ErrWriteArchiveTdb = errors.New("Error Writing Dedispersed Output TileDB Archive")
var ErrWrongSamples = errors.New("Dedispersed Output Exceeds The Tolerance Against The Reference Algorithm")
