package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitBreakerOpen = errors.New("devre kesici açık")
	ErrTooManyRequests    = errors.New("yarı açık durumda deneme kotası dolu")
)

// State, kesicinin üç durumlu yaşam döngüsünü temsil eder. Closed normal
// akıştır; ardışık hatalar eşiği aşınca Open'a geçilir, Timeout dolunca
// HalfOpen üzerinden sınırlı deneme yapılır.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Settings struct {
	// Name log satırlarında kesiciyi ayırt eder.
	Name string

	// FailureThreshold, Open'a geçmek için gereken ardışık hata sayısıdır.
	// Sıfır bırakılırsa 5 kullanılır.
	FailureThreshold int

	// Timeout, Open durumunda beklenen süredir; dolunca HalfOpen'a geçilir.
	Timeout time.Duration

	// HalfOpenProbes, HalfOpen durumunda aynı anda izin verilen deneme
	// sayısıdır. Sıfır bırakılırsa 1 kullanılır.
	HalfOpenProbes int

	OnStateChange func(name string, from State, to State)
}

// CircuitBreaker, arkasındaki bağımlılık (burada redis) çöktüğünde
// çağıranları hızlı hata ile geri çevirir; bağımlılığın toparlanması
// HalfOpen denemeleriyle sınanır.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	timeout          time.Duration
	halfOpenProbes   int
	onStateChange    func(name string, from State, to State)

	mutex        sync.Mutex
	state        State
	failures     int
	probes       int
	probeSuccess int
	openedAt     time.Time
}

func New(st Settings) *CircuitBreaker {
	if st.FailureThreshold <= 0 {
		st.FailureThreshold = 5
	}
	if st.Timeout <= 0 {
		st.Timeout = 60 * time.Second
	}
	if st.HalfOpenProbes <= 0 {
		st.HalfOpenProbes = 1
	}

	return &CircuitBreaker{
		name:             st.Name,
		failureThreshold: st.FailureThreshold,
		timeout:          st.Timeout,
		halfOpenProbes:   st.HalfOpenProbes,
		onStateChange:    st.OnStateChange,
	}
}

// Execute, kesici izin veriyorsa req'i çalıştırır ve sonucunu durum
// makinesine işler. Open durumda ErrCircuitBreakerOpen, HalfOpen deneme
// kotası dolmuşsa ErrTooManyRequests döner; iki hata da req çalıştırılmadan
// üretilir.
func (cb *CircuitBreaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	if err := cb.allow(); err != nil {
		return nil, err
	}

	result, err := req()
	cb.record(err == nil)
	return result, err
}

func (cb *CircuitBreaker) allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.timeout {
			return ErrCircuitBreakerOpen
		}
		cb.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenProbes {
			return ErrTooManyRequests
		}
		cb.probes++
	}

	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		if !success {
			cb.setState(StateOpen)
			return
		}
		cb.probeSuccess++
		if cb.probeSuccess >= cb.halfOpenProbes {
			cb.setState(StateClosed)
		}
	}
}

// setState çağıranın kilidi tuttuğunu varsayar.
func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.failures = 0
	cb.probes = 0
	cb.probeSuccess = 0
	if state == StateOpen {
		cb.openedAt = time.Now()
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}
