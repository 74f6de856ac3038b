package grabber

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/evision-ai/evision-lib/internal/model"
)

var gstInitOnce sync.Once

func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// livePipelineGrabber pulls decoded raw frames from an RTSP or USB camera
// through a go-gst pipeline terminating in a named appsink, mirroring
// gst_pipeline.go's appsink-callback wiring but exposing a synchronous Read
// instead of a frame channel, since CaptureWorker already runs its own
// dedicated goroutine per source.
type livePipelineGrabber struct {
	cfg      model.SourceConfig
	pipeline *gst.Pipeline
	appsink  *app.Sink
	frameCh  chan model.RawFrame
	errCh    chan error
}

func newLivePipelineGrabber(cfg model.SourceConfig) (FrameGrabber, error) {
	return &livePipelineGrabber{cfg: cfg}, nil
}

func (g *livePipelineGrabber) Open(ctx context.Context, key model.SourceKey) error {
	initGStreamer()

	pipelineStr, err := pipelineDescription(key)
	if err != nil {
		return fmt.Errorf("grabber: %w", err)
	}

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return fmt.Errorf("grabber: parse pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("rawsink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("grabber: missing rawsink element: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("grabber: rawsink element is not an appsink")
	}

	g.pipeline = pipeline
	g.appsink = sink
	g.frameCh = make(chan model.RawFrame, g.cfg.Normalized().FrameQueueSize)
	g.errCh = make(chan error, 1)

	sink.SetProperty("emit-signals", true)
	sink.SetProperty("max-buffers", uint(2))
	sink.SetProperty("drop", true)
	sink.SetProperty("sync", false)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: g.onNewSample})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("grabber: set pipeline playing: %w", err)
	}

	go g.watchBus(ctx)

	return nil
}

func (g *livePipelineGrabber) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	data := make([]byte, len(mapInfo.Bytes()))
	copy(data, mapInfo.Bytes())

	width, height := capsDimensions(sample)
	frame := model.RawFrame{Data: data, Width: width, Height: height, PixelFormat: "RGB"}

	select {
	case g.frameCh <- frame:
	default:
	}
	return gst.FlowOK
}

func (g *livePipelineGrabber) watchBus(ctx context.Context) {
	bus := g.pipeline.GetPipelineBus()
	if bus == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := bus.TimedPop(gst.ClockTime(100_000_000)) // 100ms, nanoseconds
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			g.sendErr(errEOF)
			return
		case gst.MessageError:
			if gerr := msg.ParseError(); gerr != nil {
				g.sendErr(fmt.Errorf("grabber: pipeline error: %w", gerr))
			}
			return
		}
	}
}

func (g *livePipelineGrabber) sendErr(err error) {
	select {
	case g.errCh <- err:
	default:
	}
}

func (g *livePipelineGrabber) Read(ctx context.Context) (model.RawFrame, error) {
	select {
	case <-ctx.Done():
		return model.RawFrame{}, ctx.Err()
	case frame := <-g.frameCh:
		return frame, nil
	case err := <-g.errCh:
		return model.RawFrame{}, err
	}
}

func (g *livePipelineGrabber) Release() error {
	if g.pipeline != nil {
		g.pipeline.SetState(gst.StateNull)
	}
	return nil
}

// pipelineDescription builds the gst-launch-style pipeline string for a
// camera source. IP cameras decode an RTSP/RTMP/HTTP URI; USB cameras read a
// v4l2 device node directly.
func pipelineDescription(key model.SourceKey) (string, error) {
	switch key.Type() {
	case model.SourceIPCamera:
		return fmt.Sprintf(
			"uridecodebin uri=%s ! videoconvert ! video/x-raw,format=RGB ! appsink name=rawsink",
			key.URI,
		), nil
	case model.SourceUSBCamera:
		return fmt.Sprintf(
			"v4l2src device=/dev/video%d ! videoconvert ! video/x-raw,format=RGB ! appsink name=rawsink",
			key.Num,
		), nil
	default:
		return "", fmt.Errorf("live pipeline grabber does not support source type %s", key.Type())
	}
}

// capsDimensions reads width/height negotiated on the sample's caps. Falls
// back to zero when caps are unavailable; downstream resize logic treats a
// zero native shape as "unknown, pass through unchanged".
func capsDimensions(sample *gst.Sample) (int, int) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	s := caps.GetStructureAt(0)
	if s == nil {
		return 0, 0
	}
	width, _ := s.GetValue("width")
	height, _ := s.GetValue("height")
	w, _ := width.(int)
	h, _ := height.(int)
	return w, h
}
