package denoise

// VADProbability exposes the sigmoid for property tests.
var VADProbability = vadProbability
