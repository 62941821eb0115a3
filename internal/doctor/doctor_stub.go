//go:build !whisper

package doctor

func checkPortAudio() Result {
	return Result{Name: "portaudio", Pass: false, Detail: "not compiled in (build with -tags whisper)"}
}
