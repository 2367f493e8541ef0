package mediaengine

import (
	"fmt"
	"sync"
	"time"
)

// simFactory is a built-in factory definition: static metadata plus the
// behavioral hooks (crashOnIntrospect, sometimesPads) the simulation
// needs to exercise the core's safety guarantees without a real
// framework underneath.
type simFactory struct {
	info              FactoryInfo
	properties        []PropertyInfo
	crashOnIntrospect bool          // simulates a known crash-prone factory
	sometimesDelay    time.Duration // delay before a "sometimes" pad appears
	sometimesPad      *PadTemplateInfo
}

// SimEngine is an in-process simulation of the media framework: enough
// fidelity to drive pipeline construction, state changes, bus messages,
// and dynamic pad appearance, without depending on a real native
// library. It is the one place in this module standing in for the media
// framework itself, which is explicitly out of scope to implement.
type SimEngine struct {
	mu        sync.RWMutex
	factories map[string]*simFactory
	skipList  map[string]bool
}

// NewSimEngine builds an engine pre-populated with a representative
// factory catalogue (sources, sinks, filters, codecs, muxers, tees, and
// a decodebin-like dynamic-pad demuxer) and the given skip-listed
// factory names.
func NewSimEngine(skipList []string) *SimEngine {
	e := &SimEngine{
		factories: make(map[string]*simFactory),
		skipList:  make(map[string]bool),
	}
	for _, name := range skipList {
		e.skipList[name] = true
	}
	for _, f := range builtinFactories() {
		e.factories[f.info.Name] = f
	}
	return e
}

func builtinFactories() []*simFactory {
	return []*simFactory{
		{
			info: FactoryInfo{
				Name: "videotestsrc", LongName: "Video Test Source",
				Klass: "Source/Video", Category: "Source/Video", Rank: 256,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaVideo, CapsString: "video/x-raw"},
				},
			},
			properties: []PropertyInfo{
				{Name: "pattern", Kind: "enum", EnumName: "GstVideoTestSrcPattern", EnumValues: []string{"smpte", "snow", "black"}, Writable: true, Readable: true},
				{Name: "is-live", Kind: "bool", Default: false, Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "audiotestsrc", LongName: "Audio Test Source",
				Klass: "Source/Audio", Category: "Source/Audio", Rank: 256,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaAudio, CapsString: "audio/x-raw"},
				},
			},
			properties: []PropertyInfo{
				{Name: "freq", Kind: "float64", Default: 440.0, Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "fakesink", LongName: "Fake Sink",
				Klass: "Sink", Category: "Sink/Generic", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAny},
				},
			},
			properties: []PropertyInfo{
				{Name: "sync", Kind: "bool", Default: true, Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "autovideosink", LongName: "Auto Video Sink",
				Klass: "Sink/Video", Category: "Sink/Video", Rank: 64,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaVideo},
				},
			},
		},
		{
			info: FactoryInfo{
				Name: "queue", LongName: "Queue",
				Klass: "Generic", Category: "Filter/Generic", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAny},
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaAny},
				},
			},
			properties: []PropertyInfo{
				{Name: "max-size-buffers", Kind: "uint64", Default: uint64(200), Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "tee", LongName: "Tee pipe fitting",
				Klass: "Generic", Category: "Filter/FanOut", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAny},
					{NameTemplate: "src_%u", Direction: PadSrc, Presence: PadRequest, MediaClass: MediaAny},
				},
			},
		},
		{
			info: FactoryInfo{
				Name: "x264enc", LongName: "H.264 Encoder",
				Klass: "Codec/Encoder/Video", Category: "Codec/Encoder/Video", Rank: 128,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaVideo},
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaVideo},
				},
			},
			properties: []PropertyInfo{
				{Name: "bitrate", Kind: "int64", Default: int64(2000), Min: int64(1), Max: int64(800000), Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "opusenc", LongName: "Opus Audio Encoder",
				Klass: "Codec/Encoder/Audio", Category: "Codec/Encoder/Audio", Rank: 128,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAudio},
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaAudio},
				},
			},
			properties: []PropertyInfo{
				{Name: "bitrate", Kind: "int64", Default: int64(64000), Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "filesrc", LongName: "File Source",
				Klass: "Source/File", Category: "Source/Generic", Rank: 256,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaAny},
				},
			},
			properties: []PropertyInfo{
				{Name: "location", Kind: "string", Writable: true, Readable: true},
			},
		},
		{
			info: FactoryInfo{
				Name: "decodebin", LongName: "Decode Bin",
				Klass: "Generic/Bin/Decoder", Category: "Demuxer", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAny},
					{NameTemplate: "src_%u", Direction: PadSrc, Presence: PadSometime, MediaClass: MediaAny},
				},
			},
			sometimesDelay: 50 * time.Millisecond,
			sometimesPad: &PadTemplateInfo{
				NameTemplate: "src_0", Direction: PadSrc, Presence: PadSometime, MediaClass: MediaVideo,
				CapsString: "video/x-raw",
			},
		},
		{
			info: FactoryInfo{
				Name: "mpegtsmux", LongName: "MPEG Transport Stream Muxer",
				Klass: "Codec/Muxer", Category: "Muxer", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink_%d", Direction: PadSink, Presence: PadRequest, MediaClass: MediaAny},
					{NameTemplate: "src", Direction: PadSrc, Presence: PadAlways, MediaClass: MediaAny},
				},
			},
		},
		// Known flaky per §4.1: class-template access faults on fresh
		// instantiation. Excluded from discovery-time instantiation by
		// the default skip-list, still usable in pipelines.
		{
			info: FactoryInfo{
				Name: "hlssink2", LongName: "HLS Sink",
				Klass: "Sink/Muxer", Category: "Sink/Network", Rank: 0,
				PadTemplates: []PadTemplateInfo{
					{NameTemplate: "sink", Direction: PadSink, Presence: PadAlways, MediaClass: MediaAny},
				},
			},
			crashOnIntrospect: true,
		},
	}
}

func (e *SimEngine) ListFactories() []FactoryInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]FactoryInfo, 0, len(e.factories))
	for _, f := range e.factories {
		out = append(out, f.info)
	}
	return out
}

func (e *SimEngine) LookupFactory(name string) (FactoryInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.factories[name]
	if !ok {
		return FactoryInfo{}, false
	}
	return f.info, true
}

func (e *SimEngine) IsSkipListed(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.skipList[name]
}

// LoadElementProperties lazily instantiates a temporary element to read
// its property list, guarded against the simulated crash. Skip-listed
// factories never reach the temporary-instantiation path.
func (e *SimEngine) LoadElementProperties(factoryName string) (props []PropertyInfo, err error) {
	e.mu.RLock()
	f, ok := e.factories[factoryName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown factory %q", factoryName)
	}
	if e.IsSkipListed(factoryName) {
		return append([]PropertyInfo(nil), f.properties...), nil
	}
	defer func() {
		if r := recover(); r != nil {
			props, err = nil, fmt.Errorf("panic during introspection of %q: %v", factoryName, r)
		}
	}()
	if f.crashOnIntrospect {
		panic("simulated native crash during class-template access")
	}
	return append([]PropertyInfo(nil), f.properties...), nil
}

func (e *SimEngine) LoadPadProperties(factoryName, padTemplate string) ([]PropertyInfo, error) {
	e.mu.RLock()
	f, ok := e.factories[factoryName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown factory %q", factoryName)
	}
	found := false
	for _, t := range f.info.PadTemplates {
		if t.NameTemplate == padTemplate {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("factory %q has no pad template %q", factoryName, padTemplate)
	}
	return nil, nil
}

func (e *SimEngine) NewElement(factoryName, elementID string) (Element, error) {
	e.mu.RLock()
	f, ok := e.factories[factoryName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown factory %q", factoryName)
	}
	el := &simElement{
		id:         elementID,
		factory:    f,
		properties: map[string]interface{}{},
		state:      StateNull,
	}
	for _, p := range f.properties {
		if p.Default != nil {
			el.properties[p.Name] = p.Default
		}
	}
	el.pads = make(map[string]*simPad)
	nextRequestIdx := map[string]int{}
	for _, t := range f.info.PadTemplates {
		if t.Presence == PadAlways {
			el.pads[t.NameTemplate] = newSimPad(t.NameTemplate, t)
		}
		if t.Presence == PadRequest {
			nextRequestIdx[t.NameTemplate] = 0
		}
	}
	el.nextRequestIdx = nextRequestIdx
	return el, nil
}

func (e *SimEngine) NewPipeline(id string) Pipeline {
	return &simPipeline{
		id:   id,
		bus:  make(chan BusMessage, 64),
		done: make(chan struct{}),
	}
}

type simPad struct {
	mu       sync.Mutex
	name     string
	template PadTemplateInfo
	peer     *simPad
	caps     string
}

func newSimPad(name string, t PadTemplateInfo) *simPad {
	return &simPad{name: name, template: t}
}

func (p *simPad) Name() string             { return p.name }
func (p *simPad) Direction() PadDirection   { return p.template.Direction }
func (p *simPad) Presence() PadPresence     { return p.template.Presence }
func (p *simPad) MediaClass() MediaClass    { return p.template.MediaClass }

func (p *simPad) Caps() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.caps != "" {
		return p.caps
	}
	return p.template.CapsString
}

func (p *simPad) Peer() (Pad, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer == nil {
		return nil, false
	}
	return p.peer, true
}

func (p *simPad) Link(peer Pad) error {
	sp, ok := peer.(*simPad)
	if !ok {
		return fmt.Errorf("incompatible pad implementation")
	}
	p.mu.Lock()
	if p.peer != nil {
		p.mu.Unlock()
		return fmt.Errorf("pad %q already linked", p.name)
	}
	p.mu.Unlock()

	sp.mu.Lock()
	if sp.peer != nil {
		sp.mu.Unlock()
		return fmt.Errorf("pad %q already linked", sp.name)
	}
	sp.peer = p
	negotiated := p.template.CapsString
	if negotiated == "" {
		negotiated = sp.template.CapsString
	}
	sp.caps = negotiated
	sp.mu.Unlock()

	p.mu.Lock()
	p.peer = sp
	p.caps = negotiated
	p.mu.Unlock()
	return nil
}

func (p *simPad) Unlink() error {
	p.mu.Lock()
	peer := p.peer
	p.peer = nil
	p.mu.Unlock()
	if peer != nil {
		peer.mu.Lock()
		peer.peer = nil
		peer.mu.Unlock()
	}
	return nil
}

func (p *simPad) GetProperty(name string) (interface{}, error) {
	return nil, fmt.Errorf("pad %q has no property %q", p.name, name)
}

func (p *simPad) SetProperty(name string, value interface{}) error {
	return fmt.Errorf("pad %q has no property %q", p.name, name)
}

type simElement struct {
	mu             sync.Mutex
	id             string
	factory        *simFactory
	properties     map[string]interface{}
	pads           map[string]*simPad
	nextRequestIdx map[string]int
	state          State
	onPadAdded     []func(Pad)
	pipeline       *simPipeline
}

func (el *simElement) ID() string          { return el.id }
func (el *simElement) FactoryName() string { return el.factory.info.Name }

func (el *simElement) StaticPad(name string) (Pad, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	p, ok := el.pads[name]
	if !ok || p.template.Presence != PadAlways {
		return nil, false
	}
	return p, true
}

func (el *simElement) RequestPad(templateNamePattern string) (Pad, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	for _, t := range el.factory.info.PadTemplates {
		if t.NameTemplate != templateNamePattern || t.Presence != PadRequest {
			continue
		}
		idx := el.nextRequestIdx[t.NameTemplate]
		el.nextRequestIdx[t.NameTemplate] = idx + 1
		name := fmt.Sprintf(expandTemplate(t.NameTemplate), idx)
		p := newSimPad(name, t)
		el.pads[name] = p
		return p, nil
	}
	return nil, fmt.Errorf("element %q factory %q has no request template %q", el.id, el.factory.info.Name, templateNamePattern)
}

func expandTemplate(nameTemplate string) string {
	// "src_%u" / "sink_%d" -> "src_%d" / "sink_%d" for fmt.Sprintf.
	out := make([]byte, 0, len(nameTemplate))
	for i := 0; i < len(nameTemplate); i++ {
		if nameTemplate[i] == '%' && i+1 < len(nameTemplate) && nameTemplate[i+1] == 'u' {
			out = append(out, '%', 'd')
			i++
			continue
		}
		out = append(out, nameTemplate[i])
	}
	return string(out)
}

func (el *simElement) OnPadAdded(cb func(Pad)) {
	el.mu.Lock()
	el.onPadAdded = append(el.onPadAdded, cb)
	pipe := el.pipeline
	delay := el.factory.sometimesDelay
	tmpl := el.factory.sometimesPad
	el.mu.Unlock()

	if tmpl == nil {
		return
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		p := newSimPad(tmpl.NameTemplate, *tmpl)
		el.mu.Lock()
		el.pads[tmpl.NameTemplate] = p
		el.mu.Unlock()
		cb(p)
		if pipe != nil {
			pipe.emit(BusMessage{Kind: BusElementAdded, Timestamp: time.Now(), SourceElement: el.id})
		}
	}()
}

func (el *simElement) GetProperty(name string) (interface{}, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	v, ok := el.properties[name]
	if !ok {
		for _, p := range el.factory.properties {
			if p.Name == name {
				return p.Default, nil
			}
		}
		return nil, fmt.Errorf("element %q: unknown property %q", el.id, name)
	}
	return v, nil
}

func (el *simElement) SetProperty(name string, value interface{}) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	found := false
	for _, p := range el.factory.properties {
		if p.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("element %q: unknown property %q", el.id, name)
	}
	el.properties[name] = value
	return nil
}

func (el *simElement) SetState(s State) error {
	el.mu.Lock()
	el.state = s
	el.mu.Unlock()
	return nil
}

func (el *simElement) State() State {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.state
}

type simPipeline struct {
	mu       sync.Mutex
	id       string
	elements []*simElement
	state    State
	bus      chan BusMessage
	done     chan struct{}
	closed   bool
}

func (p *simPipeline) Add(el Element) error {
	se, ok := el.(*simElement)
	if !ok {
		return fmt.Errorf("incompatible element implementation")
	}
	p.mu.Lock()
	se.pipeline = p
	p.elements = append(p.elements, se)
	p.mu.Unlock()
	p.emit(BusMessage{Kind: BusElementAdded, Timestamp: time.Now(), SourceElement: se.id})
	return nil
}

func (p *simPipeline) Remove(el Element) error {
	se, ok := el.(*simElement)
	if !ok {
		return fmt.Errorf("incompatible element implementation")
	}
	p.mu.Lock()
	for i, e := range p.elements {
		if e == se {
			p.elements = append(p.elements[:i], p.elements[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.emit(BusMessage{Kind: BusElementRemoved, Timestamp: time.Now(), SourceElement: se.id})
	return nil
}

func (p *simPipeline) Elements() []Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, len(p.elements))
	for i, e := range p.elements {
		out[i] = e
	}
	return out
}

func (p *simPipeline) LinkElements(src, sink Element) error {
	srcEl, ok1 := src.(*simElement)
	sinkEl, ok2 := sink.(*simElement)
	if !ok1 || !ok2 {
		return fmt.Errorf("incompatible element implementation")
	}
	var srcPad, sinkPad *simPad
	srcEl.mu.Lock()
	for _, t := range srcEl.factory.info.PadTemplates {
		if t.Direction == PadSrc && t.Presence == PadRequest {
			idx := srcEl.nextRequestIdx[t.NameTemplate]
			srcEl.nextRequestIdx[t.NameTemplate] = idx + 1
			name := fmt.Sprintf(expandTemplate(t.NameTemplate), idx)
			srcPad = newSimPad(name, t)
			srcEl.pads[name] = srcPad
			break
		}
		if t.Direction == PadSrc && t.Presence == PadAlways {
			srcPad = srcEl.pads[t.NameTemplate]
		}
	}
	srcEl.mu.Unlock()

	sinkEl.mu.Lock()
	for _, t := range sinkEl.factory.info.PadTemplates {
		if t.Direction == PadSink && t.Presence == PadRequest {
			idx := sinkEl.nextRequestIdx[t.NameTemplate]
			sinkEl.nextRequestIdx[t.NameTemplate] = idx + 1
			name := fmt.Sprintf(expandTemplate(t.NameTemplate), idx)
			sinkPad = newSimPad(name, t)
			sinkEl.pads[name] = sinkPad
			break
		}
		if t.Direction == PadSink && t.Presence == PadAlways {
			sinkPad = sinkEl.pads[t.NameTemplate]
		}
	}
	sinkEl.mu.Unlock()

	if srcPad == nil || sinkPad == nil {
		return fmt.Errorf("element-level link between %q and %q: no compatible pads", srcEl.id, sinkEl.id)
	}
	return srcPad.Link(sinkPad)
}

func (p *simPipeline) SetState(target State) error {
	p.mu.Lock()
	old := p.state
	elements := append([]*simElement(nil), p.elements...)
	p.mu.Unlock()

	for _, el := range elements {
		el.SetState(target)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		p.mu.Lock()
		p.state = target
		p.mu.Unlock()
		p.emit(BusMessage{Kind: BusStateChanged, Timestamp: time.Now(), Old: old, New: target})
	}()
	return nil
}

func (p *simPipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *simPipeline) Bus() <-chan BusMessage { return p.bus }

func (p *simPipeline) emit(msg BusMessage) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.bus <- msg:
	default:
		// Bus is a bounded channel; a stalled consumer must not block
		// the simulated framework threads delivering messages.
	}
}

// InjectBusError pushes a synthetic BusError message onto pipeline's bus,
// the same way a real framework thread would report a fatal element error.
// It exists only so tests can exercise the Lifecycle Manager's error-path
// handling without a crash-prone factory; production code never calls it.
func InjectBusError(pipeline Pipeline, sourceElement, domain string, code int, detail string) error {
	p, ok := pipeline.(*simPipeline)
	if !ok {
		return fmt.Errorf("InjectBusError: not a simulated pipeline")
	}
	p.emit(BusMessage{
		Kind:          BusError,
		Timestamp:     time.Now(),
		SourceElement: sourceElement,
		Domain:        domain,
		Code:          code,
		Detail:        detail,
	})
	return nil
}

func (p *simPipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
	close(p.bus)
	return nil
}
