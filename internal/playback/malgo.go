package playback

import (
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

const bytesPerFrame = 4 // mono float32

// MalgoOutput plays buffers on a miniaudio playback device. Its clock is
// the number of frames the device has rendered divided by the sample rate,
// so it advances exactly as fast as audio is consumed.
type MalgoOutput struct {
	deviceName string

	mu  sync.Mutex
	ctx *malgo.AllocatedContext

	// rendered is the audio clock in nanoseconds of rendered audio.
	rendered atomic.Int64
}

// NewMalgoOutput initializes the audio context. An empty deviceName selects
// the system default playback device.
func NewMalgoOutput(deviceName string) (*MalgoOutput, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		GetLogger().Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("playback").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Build()
	}
	return &MalgoOutput{deviceName: deviceName, ctx: ctx}, nil
}

// Now implements Output.
func (o *MalgoOutput) Now() float64 {
	return float64(o.rendered.Load()) / 1e9
}

// Start implements Output.
func (o *MalgoOutput) Start(buf *audiofile.Buffer, offsetSec float64, onEnded func()) (Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil {
		return nil, errors.New(errors.NewStd("audio output is closed")).
			Component("playback").
			Category(errors.CategoryState).
			Build()
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(buf.SampleRate) //nolint:gosec // validated positive by the clock
	cfg.Alsa.NoMMap = 1

	if o.deviceName != "" {
		info, err := o.findDevice()
		if err != nil {
			return nil, err
		}
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	start := min(max(int(offsetSec*float64(buf.SampleRate)), 0), len(buf.Samples))
	node := &malgoNode{
		samples: buf.Samples,
		rate:    float64(buf.SampleRate),
		onEnded: onEnded,
		clock:   &o.rendered,
	}
	node.cursor.Store(int64(start))

	device, err := malgo.InitDevice(o.ctx.Context, cfg, malgo.DeviceCallbacks{Data: node.onData})
	if err != nil {
		return nil, errors.New(err).
			Component("playback").
			Category(errors.CategoryAudio).
			Context("operation", "init_device").
			Context("sample_rate", buf.SampleRate).
			Build()
	}
	node.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, errors.New(err).
			Component("playback").
			Category(errors.CategoryAudio).
			Context("operation", "start_device").
			Build()
	}
	return node, nil
}

// findDevice returns the playback device whose name contains deviceName.
func (o *MalgoOutput) findDevice() (*malgo.DeviceInfo, error) {
	infos, err := o.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("playback").
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_devices").
			Build()
	}
	for i := range infos {
		if infos[i].Name() == o.deviceName {
			return &infos[i], nil
		}
	}
	for i := range infos {
		if strings.Contains(infos[i].Name(), o.deviceName) {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("no playback device matching %q", o.deviceName).
		Component("playback").
		Category(errors.CategoryValidation).
		Context("available_devices", len(infos)).
		Build()
}

// Close releases the audio context. Nodes must be stopped first.
func (o *MalgoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	err := o.ctx.Uninit()
	o.ctx.Free()
	o.ctx = nil
	return err
}

// malgoNode streams one buffer to a device.
type malgoNode struct {
	samples []float32
	rate    float64
	onEnded func()
	clock   *atomic.Int64
	device  *malgo.Device

	cursor   atomic.Int64
	ended    atomic.Bool
	stopOnce sync.Once
}

// onData runs on the device thread. After the buffer is exhausted it keeps
// writing silence so the clock keeps running until Stop.
func (n *malgoNode) onData(out, _ []byte, frames uint32) {
	pos := int(n.cursor.Load())
	for i := range int(frames) {
		var s float32
		if pos < len(n.samples) {
			s = n.samples[pos]
			pos++
		}
		binary.LittleEndian.PutUint32(out[i*bytesPerFrame:], math.Float32bits(s))
	}
	n.cursor.Store(int64(pos))
	n.clock.Add(int64(float64(frames) * 1e9 / n.rate))

	if pos >= len(n.samples) && n.ended.CompareAndSwap(false, true) && n.onEnded != nil {
		go n.onEnded()
	}
}

// Stop implements Node.
func (n *malgoNode) Stop() {
	n.stopOnce.Do(func() {
		n.ended.Store(true)
		if n.device != nil {
			_ = n.device.Stop()
			n.device.Uninit()
		}
	})
}
