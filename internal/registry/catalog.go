package registry

// mlmodelcFiles are the files a compiled CoreML bundle must contain to load.
var mlmodelcFiles = []string{
	"coremldata.bin",
	"metadata.json",
	"model.mil",
	"weights/weight.bin",
}

func parakeetManifest() Manifest {
	names := []string{
		"Preprocessor.mlmodelc",
		"Encoder.mlmodelc",
		"Decoder.mlmodelc",
		"JointDecision.mlmodelc",
		"MelEncoder.mlmodelc",
		"RNNTJoint.mlmodelc",
	}
	m := Manifest{Bundles: make([]Bundle, 0, len(names))}
	for _, n := range names {
		m.Bundles = append(m.Bundles, Bundle{Name: n, Files: append([]string(nil), mlmodelcFiles...)})
	}
	return m
}

// Builtin returns the catalog shipped with the binary. A fresh slice is
// returned on every call.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:          "whisper-base",
			Name:        "Whisper Base",
			Description: "Balanced speed and quality, multilingual.",
			SizeLabel:   "~142 MB",
			Kind:        KindPackage,
			Language:    "multi",
			InfoURL:     "https://github.com/ggerganov/whisper.cpp",
			PackageFile: "ggml-base.bin",
		},
		{
			ID:          "whisper-small.en",
			Name:        "Whisper Small (English)",
			Description: "Higher quality, English-only.",
			SizeLabel:   "~466 MB",
			Kind:        KindPackage,
			Language:    "en",
			InfoURL:     "https://github.com/ggerganov/whisper.cpp",
			PackageFile: "ggml-small.en.bin",
		},
		{
			ID:          "whisper-large-v3-turbo",
			Name:        "Whisper Large v3 Turbo",
			Description: "Faster large-v3 variant.",
			SizeLabel:   "~1.6 GB",
			Kind:        KindPackage,
			Language:    "multi",
			InfoURL:     "https://github.com/ggerganov/whisper.cpp",
			PackageFile: "ggml-large-v3-turbo.bin",
		},
		{
			ID:          "parakeet-tdt-0.6b-v2",
			Name:        "Parakeet TDT 0.6B v2",
			Description: "Fast on-device English transcription (CoreML bundles).",
			SizeLabel:   "~480 MB",
			Kind:        KindFileSet,
			Language:    "en",
			InfoURL:     "https://huggingface.co/nvidia/parakeet-tdt-0.6b-v2",
			Manifest:    parakeetManifest(),
		},
		{
			ID:          "canary-1b-flash",
			Name:        "Canary 1B Flash",
			Description: "Listed for reference; no on-device runtime available yet.",
			SizeLabel:   "~1.9 GB",
			Kind:        KindUnsupported,
			Language:    "multi",
			InfoURL:     "https://huggingface.co/nvidia/canary-1b-flash",
		},
	}
}
