package grabber

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/evision-ai/evision-lib/internal/model"
)

// fileGrabber serves VIDEO_FILE/VIDEO_LINK sources through the same go-gst
// decode path as the live grabber (minus the camera-specific source element)
// and IMAGE_FILE/IMAGE_LINK sources through the stdlib image package, since a
// still image needs no streaming pipeline at all.
type fileGrabber struct {
	cfg model.SourceConfig

	// video path
	pipeline *gst.Pipeline
	appsink  *app.Sink
	frameCh  chan model.RawFrame
	errCh    chan error

	// image path
	single    *model.RawFrame
	delivered bool
	mu        sync.Mutex
}

func newFileGrabber(cfg model.SourceConfig) (FrameGrabber, error) {
	return &fileGrabber{cfg: cfg}, nil
}

func (g *fileGrabber) Open(ctx context.Context, key model.SourceKey) error {
	switch key.Type() {
	case model.SourceImageFile, model.SourceImageLink:
		return g.openImage(key)
	case model.SourceVideoFile, model.SourceVideoLink:
		return g.openVideo(ctx, key)
	default:
		return fmt.Errorf("grabber: file grabber does not support source type %s", key.Type())
	}
}

func (g *fileGrabber) openImage(key model.SourceKey) error {
	var r io.ReadCloser
	if key.Type() == model.SourceImageLink {
		resp, err := http.Get(key.URI)
		if err != nil {
			return fmt.Errorf("grabber: fetch image: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("grabber: fetch image: unexpected status %s", resp.Status)
		}
		r = resp.Body
	} else {
		f, err := os.Open(key.URI)
		if err != nil {
			return fmt.Errorf("grabber: open image: %w", err)
		}
		r = f
	}
	defer r.Close()

	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("grabber: decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba := imageToRGBA(img)
	frame := model.RawFrame{Data: rgba, Width: bounds.Dx(), Height: bounds.Dy(), PixelFormat: "RGBA"}
	_ = format

	g.mu.Lock()
	g.single = &frame
	g.mu.Unlock()
	return nil
}

func (g *fileGrabber) openVideo(ctx context.Context, key model.SourceKey) error {
	initGStreamer()

	pipelineStr := fmt.Sprintf(
		"uridecodebin uri=%s ! videoconvert ! video/x-raw,format=RGB ! appsink name=rawsink",
		videoURI(key),
	)
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
	sink.SetProperty("sync", true)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: g.onNewSample})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("grabber: set pipeline playing: %w", err)
	}

	go g.watchBus(ctx)
	return nil
}

func (g *fileGrabber) onNewSample(sink *app.Sink) gst.FlowReturn {
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

func (g *fileGrabber) watchBus(ctx context.Context) {
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
		msg := bus.TimedPop(gst.ClockTime(100_000_000))
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

func (g *fileGrabber) sendErr(err error) {
	select {
	case g.errCh <- err:
	default:
	}
}

func (g *fileGrabber) Read(ctx context.Context) (model.RawFrame, error) {
	g.mu.Lock()
	isImage := g.single != nil
	g.mu.Unlock()

	if isImage {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.delivered {
			return model.RawFrame{}, errEOF
		}
		g.delivered = true
		return *g.single, nil
	}

	select {
	case <-ctx.Done():
		return model.RawFrame{}, ctx.Err()
	case frame := <-g.frameCh:
		return frame, nil
	case err := <-g.errCh:
		return model.RawFrame{}, err
	}
}

func (g *fileGrabber) Release() error {
	if g.pipeline != nil {
		g.pipeline.SetState(gst.StateNull)
	}
	return nil
}

func videoURI(key model.SourceKey) string {
	if key.Type() == model.SourceVideoFile {
		return "file://" + key.URI
	}
	return key.URI
}

// imageToRGBA flattens any decoded image.Image into a packed RGBA byte
// slice, matching the pixel layout ConsumerView's resize path expects.
func imageToRGBA(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*4)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(b >> 8)
			out[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out
}
