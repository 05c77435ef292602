package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fortressbank/bankd/internal/bank"
	"github.com/fortressbank/bankd/pkg/logger"
	"github.com/fortressbank/bankd/pkg/worker"
)

const sendPath = "/api/v1/sms/send"

type Config struct {
	ProviderURL string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Workers     int
	QueueSize   int
}

type SendRequest struct {
	MessageID   string `json:"message_id"`
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
}

type SendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// SMSNotifier delivers account alerts to the SMS provider. Delivery runs
// on a worker pool so ledger operations never wait on the provider, and a
// full queue drops the alert rather than blocking.
type SMSNotifier struct {
	config Config
	client *fasthttp.Client
	pool   *worker.WorkerManager
}

func New(config Config) *SMSNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}

	n := &SMSNotifier{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		pool: worker.NewWorkerManager(config.QueueSize, config.Workers, nil),
	}
	n.pool.SetWorker(n.deliver)
	return n
}

// Start launches the delivery workers. Returns immediately.
func (n *SMSNotifier) Start() {
	go n.pool.Start()
}

// Stop halts the workers. Queued alerts that have not been picked up yet
// are discarded.
func (n *SMSNotifier) Stop() {
	n.pool.Exit()
}

// Notify implements bank.Notifier.
func (n *SMSNotifier) Notify(event bank.Event) {
	request := &SendRequest{
		MessageID:   uuid.NewString(),
		PhoneNumber: event.Phone,
		Content:     composeMessage(event),
	}
	if !n.pool.Enqueue(request) {
		logger.Warn("sms queue full, alert dropped", "account_num", event.AccountNum, "kind", event.Kind)
	}
}

func (n *SMSNotifier) deliver(_ int, job interface{}) {
	request, ok := job.(*SendRequest)
	if !ok {
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(n.config.RetryDelay)
		}
		if lastErr = n.send(request); lastErr == nil {
			logger.Debug("sms delivered", "message_id", request.MessageID)
			return
		}
	}
	logger.Warn("sms delivery failed", "message_id", request.MessageID, "error", lastErr)
}

func (n *SMSNotifier) send(request *SendRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.config.ProviderURL + sendPath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := n.client.DoDeadline(req, resp, time.Now().Add(n.config.Timeout)); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	var response SendResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if response.Status == "FAILED" {
		return fmt.Errorf("provider rejected message %s", request.MessageID)
	}
	return nil
}

func composeMessage(event bank.Event) string {
	amount := bank.FormatAmount(event.Amount)
	balance := bank.FormatAmount(event.Balance)
	switch event.Kind {
	case bank.EventDeposit:
		return fmt.Sprintf("Deposit of %s completed. New balance: %s", amount, balance)
	case bank.EventWithdrawal:
		return fmt.Sprintf("Withdrawal of %s completed. New balance: %s", amount, balance)
	case bank.EventTransferSent:
		return fmt.Sprintf("Transfer of %s sent. New balance: %s", amount, balance)
	case bank.EventTransferReceived:
		return fmt.Sprintf("Transfer of %s received. New balance: %s", amount, balance)
	default:
		return fmt.Sprintf("Account activity: %s. New balance: %s", amount, balance)
	}
}
