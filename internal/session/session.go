package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fortressbank/bankd/internal/auth"
	"github.com/fortressbank/bankd/internal/bank"
	"github.com/fortressbank/bankd/internal/metrics"
	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/internal/repository"
	"github.com/fortressbank/bankd/internal/transport"
	"github.com/fortressbank/bankd/pkg/logger"
)

// DefaultIdleTimeout closes sessions whose client has gone quiet.
const DefaultIdleTimeout = 5 * time.Minute

// Handler drives the menu protocol for one connection at a time. It is
// stateless across connections, so a single Handler is shared by every
// session the server accepts.
type Handler struct {
	ledger      *bank.LedgerService
	gate        *auth.Gate
	idleTimeout time.Duration
	maxFrame    int
}

func NewHandler(ledger *bank.LedgerService, gate *auth.Gate, idleTimeout time.Duration, maxFrame int) *Handler {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Handler{
		ledger:      ledger,
		gate:        gate,
		idleTimeout: idleTimeout,
		maxFrame:    maxFrame,
	}
}

// Handle owns the connection for its whole lifetime. Any transport error
// ends the session; the connection and session state are always released,
// whatever path the session exits through.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// The handshake read is bounded like every later read, so a client
	// that connects and never speaks cannot pin this goroutine.
	if err := conn.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
		logger.Warn("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	sess, err := transport.Open(conn, h.maxFrame)
	if err != nil {
		logger.Warn("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	sess.SetWriteTimeout(h.idleTimeout)

	metrics.SessionOpened()
	defer metrics.SessionClosed()

	c := &conversation{
		id:        uuid.NewString(),
		transport: sess,
		idle:      h.idleTimeout,
	}
	logger.Info("session opened", "session_id", c.id, "remote", sess.RemoteAddr())

	if err := h.loginLoop(ctx, c); err != nil {
		logger.Warn("session ended", "session_id", c.id, "error", err)
		return
	}
	logger.Info("session closed", "session_id", c.id)
}

// conversation pairs the transport session with the idle policy and the
// session id used in logs.
type conversation struct {
	id        string
	transport *transport.Session
	idle      time.Duration
}

func (c *conversation) send(message string) error {
	return c.transport.Send(message)
}

func (c *conversation) receive() (string, error) {
	if err := c.transport.SetIdleDeadline(c.idle); err != nil {
		return "", err
	}
	text, err := c.transport.Receive()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *conversation) prompt(message string) (string, error) {
	if err := c.send(message); err != nil {
		return "", err
	}
	return c.receive()
}

// pause shows a message and waits for the press-any-key acknowledgement.
func (c *conversation) pause(message string) error {
	if err := c.send(message); err != nil {
		return err
	}
	_, err := c.receive()
	return err
}

func (h *Handler) loginLoop(ctx context.Context, c *conversation) error {
	for {
		choice, err := c.prompt(loginMenu)
		if err != nil {
			return err
		}

		switch strings.ToLower(choice) {
		case "a":
			if err := h.login(ctx, c); err != nil {
				return err
			}
		case "b":
			return c.send(transport.MarkerExit + "\n\nThank you for using Fintech Fortress Bank\n")
		default:
			if err := c.pause("\nInvalid option was entered. Press any key to continue..."); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) login(ctx context.Context, c *conversation) error {
	input, err := c.prompt("\nEnter your account number: ")
	if err != nil {
		return err
	}
	accountNum, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return c.pause("\nAccount number must be an integer. Press any key to continue...")
	}

	password, err := c.prompt(transport.MarkerPass)
	if err != nil {
		return err
	}

	switch role := h.gate.Authenticate(ctx, accountNum, password); role {
	case auth.RoleAdmin:
		metrics.LoginAttempt(metrics.OutcomeOK)
		logger.Info("administrator logged in", "session_id", c.id)
		return h.adminLoop(ctx, c)
	case auth.RoleCustomer:
		metrics.LoginAttempt(metrics.OutcomeOK)
		logger.Info("customer logged in", "session_id", c.id, "account_num", accountNum)
		return h.customerLoop(ctx, c, accountNum)
	default:
		metrics.LoginAttempt(metrics.OutcomeRejected)
		return c.pause("\nInvalid credentials. Press any key to continue...")
	}
}

func (h *Handler) adminLoop(ctx context.Context, c *conversation) error {
	for {
		choice, err := c.prompt(adminMenu)
		if err != nil {
			return err
		}

		switch strings.ToLower(choice) {
		case "a":
			err = h.createAccount(ctx, c)
		case "b":
			err = h.closeAccount(ctx, c)
		case "c":
			err = h.showAccounts(ctx, c)
		case "d":
			err = h.showTransactions(ctx, c)
		case "e":
			return nil
		default:
			err = c.pause("\nInvalid option was entered. Press any key to continue...")
		}
		if err != nil {
			return err
		}
	}
}

func (h *Handler) createAccount(ctx context.Context, c *conversation) error {
	ssn, err := c.prompt(transport.MarkerClear + "\nEnter SSN number: ")
	if err != nil {
		return err
	}
	phone, err := c.prompt("\nEnter phone number: ")
	if err != nil {
		return err
	}
	firstName, err := c.prompt("\nEnter first name: ")
	if err != nil {
		return err
	}
	lastName, err := c.prompt("\nEnter last name: ")
	if err != nil {
		return err
	}
	smsAnswer, err := c.prompt("\nActivate SMS service for user? (Y or N): ")
	if err != nil {
		return err
	}
	smsAnswer = strings.ToLower(smsAnswer)
	password, err := c.prompt("\nEnter password: ")
	if err != nil {
		return err
	}

	accountNum, err := h.ledger.CreateAccount(ctx, &model.AccountCreateRequest{
		FirstName: firstName,
		LastName:  lastName,
		SSN:       ssn,
		Phone:     phone,
		SMSOptIn:  smsAnswer == "y" || smsAnswer == "yes",
		Password:  password,
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateIdentity):
		return c.pause("\nError: The SSN or phone number is already in use. Press any key to continue...")
	case err != nil:
		logger.Error("account creation failed", "session_id", c.id, "error", err)
		return c.pause("\nAccount could not be added. Press any key to continue...")
	default:
		message := fmt.Sprintf("\nAccount %d added successfully. Press any key to continue...", accountNum)
		return c.pause(message)
	}
}

// closeAccount gates the deletion behind a fresh admin password entry
// even though the session is already an administrator.
func (h *Handler) closeAccount(ctx context.Context, c *conversation) error {
	input, err := c.prompt(transport.MarkerClear + "\nEnter account number: ")
	if err != nil {
		return err
	}
	accountNum, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return c.pause(transport.MarkerClear + "\nAccount number must be an integer. Press any key to continue...")
	}

	if _, err := h.ledger.Account(ctx, accountNum); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return c.pause(transport.MarkerClear + "\nAccount with that account number does not exist. Press any key to continue...")
		}
		return c.pause(transport.MarkerClear + "\nAccount could not be closed. Press any key to continue...")
	}

	password, err := c.prompt(transport.MarkerClear + "\n" + transport.MarkerPass + "\nEnter admin password to proceed: ")
	if err != nil {
		return err
	}
	if h.gate.Authenticate(ctx, model.AdminAccountNum, password) != auth.RoleAdmin {
		return c.pause(transport.MarkerClear + "\nWrong password. Deletion will not happen. Press any key to continue...")
	}

	switch err := h.ledger.DeleteAccount(ctx, accountNum); {
	case errors.Is(err, bank.ErrProtectedAccount):
		return c.pause(transport.MarkerClear + "\nThat account cannot be closed. Press any key to continue...")
	case errors.Is(err, repository.ErrAccountNotFound):
		return c.pause(transport.MarkerClear + "\nAccount with that account number does not exist. Press any key to continue...")
	case err != nil:
		logger.Error("account deletion failed", "session_id", c.id, "error", err)
		return c.pause(transport.MarkerClear + "\nAccount could not be closed. Press any key to continue...")
	default:
		message := fmt.Sprintf("%s\nAccount %d was deleted. Press any key...", transport.MarkerClear, accountNum)
		return c.pause(message)
	}
}

func (h *Handler) showAccounts(ctx context.Context, c *conversation) error {
	snapshot, err := h.ledger.AccountsSnapshot(ctx)
	if err != nil {
		logger.Error("accounts listing failed", "session_id", c.id, "error", err)
		return c.pause("\nUnable to show ACCOUNTS table. Press any key to continue...")
	}
	message := fmt.Sprintf("%s\nACCOUNTS table\n\n%s\n\nPress any key to continue...", transport.MarkerClear, snapshot)
	return c.pause(message)
}

func (h *Handler) showTransactions(ctx context.Context, c *conversation) error {
	snapshot, err := h.ledger.TransactionsSnapshot(ctx)
	if err != nil {
		logger.Error("transactions listing failed", "session_id", c.id, "error", err)
		return c.pause("\nUnable to show TRANSACTIONS table. Press any key to continue...")
	}
	message := fmt.Sprintf("%s\nTRANSACTIONS table\n\n%s\n\nPress any key to continue...", transport.MarkerClear, snapshot)
	return c.pause(message)
}

func (h *Handler) customerLoop(ctx context.Context, c *conversation, accountNum int64) error {
	for {
		balance, err := h.ledger.Balance(ctx, accountNum)
		if err != nil {
			// The account can disappear mid-session when an administrator
			// closes it. Drop back to the login menu.
			logger.Warn("customer balance lookup failed", "session_id", c.id, "account_num", accountNum, "error", err)
			return c.pause("\nYour account is no longer available. Press any key to continue...")
		}

		choice, err := c.prompt(renderCustomerMenu(accountNum, balance))
		if err != nil {
			return err
		}

		switch strings.ToLower(choice) {
		case "a":
			// Refresh. The next loop iteration re-reads the balance.
		case "b":
			err = h.deposit(ctx, c, accountNum)
		case "c":
			err = h.withdraw(ctx, c, accountNum)
		case "d":
			err = h.transfer(ctx, c, accountNum)
		case "e":
			err = h.showHistory(ctx, c, accountNum)
		case "f":
			return nil
		default:
			err = c.pause("\nInvalid option was entered. Press any key to continue...")
		}
		if err != nil {
			return err
		}
	}
}

func (h *Handler) deposit(ctx context.Context, c *conversation, accountNum int64) error {
	input, err := c.prompt("\nEnter amount to deposit: ")
	if err != nil {
		return err
	}
	amount, err := bank.ParseAmount(input)
	if err != nil {
		return c.pause("\nEnter a valid number. Press any key to continue...")
	}

	if _, err := h.ledger.Deposit(ctx, accountNum, amount); err != nil {
		logger.Error("deposit failed", "session_id", c.id, "account_num", accountNum, "error", err)
		return c.pause("\nDeposit could not be completed. Press any key to continue...")
	}
	return c.pause("\nDeposit was successful. Press any key to continue...")
}

func (h *Handler) withdraw(ctx context.Context, c *conversation, accountNum int64) error {
	input, err := c.prompt("\nEnter amount to withdraw: ")
	if err != nil {
		return err
	}
	amount, err := bank.ParseAmount(input)
	if err != nil {
		return c.pause("\nEnter a valid number. Press any key to continue...")
	}

	switch _, err := h.ledger.Withdraw(ctx, accountNum, amount); {
	case errors.Is(err, repository.ErrInsufficientFunds):
		return c.pause("\nInsufficient balance to perform withdrawal. Press any key to continue...")
	case err != nil:
		logger.Error("withdrawal failed", "session_id", c.id, "account_num", accountNum, "error", err)
		return c.pause("\nWithdrawal could not be completed. Press any key to continue...")
	default:
		return c.pause("\nWithdrawal was successful. Press any key to continue...")
	}
}

func (h *Handler) transfer(ctx context.Context, c *conversation, accountNum int64) error {
	input, err := c.prompt("\nEnter account number of receiver: ")
	if err != nil {
		return err
	}
	recipient, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return c.pause("\nAccount number must be an integer. Press any key to continue...")
	}

	if _, err := h.ledger.Account(ctx, recipient); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return c.pause("\nThe account does not exist. Press any key to continue...")
		}
		return c.pause("\nTransfer could not be completed. Press any key to continue...")
	}

	input, err = c.prompt("\nEnter amount to transfer: ")
	if err != nil {
		return err
	}
	amount, err := bank.ParseAmount(input)
	if err != nil {
		return c.pause("\nEnter a valid number. Press any key to continue...")
	}

	switch err := h.ledger.Transfer(ctx, accountNum, recipient, amount); {
	case errors.Is(err, repository.ErrInsufficientFunds):
		return c.pause("\nInsufficient balance to perform transfer. Press any key to continue...")
	case errors.Is(err, bank.ErrInvalidAmount):
		return c.pause("\nEnter a valid number. Press any key to continue...")
	case errors.Is(err, repository.ErrAccountNotFound):
		return c.pause("\nThe account does not exist. Press any key to continue...")
	case err != nil:
		logger.Error("transfer failed", "session_id", c.id, "account_num", accountNum, "error", err)
		return c.pause("\nTransfer could not be completed. Press any key to continue...")
	default:
		return c.pause("\nTransfer was successful. Press any key to continue...")
	}
}

func (h *Handler) showHistory(ctx context.Context, c *conversation, accountNum int64) error {
	history, err := h.ledger.History(ctx, accountNum)
	if err != nil {
		logger.Error("history listing failed", "session_id", c.id, "account_num", accountNum, "error", err)
		return c.pause("\nUnable to show TRANSACTIONS table. Press any key to continue...")
	}
	snapshot, err := bank.RenderTransactions(history)
	if err != nil {
		return c.pause("\nUnable to show TRANSACTIONS table. Press any key to continue...")
	}
	message := fmt.Sprintf("%s\nTRANSACTIONS table\n\n%s\n\nPress any key to continue...", transport.MarkerClear, snapshot)
	return c.pause(message)
}
