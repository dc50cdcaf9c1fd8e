package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"order-saga-client/internal/apierr"
)

// OutcomeKind names the three results of a create-order saga
type OutcomeKind string

const (
	OutcomeCompleted  OutcomeKind = "Completed"
	OutcomeInProgress OutcomeKind = "InProgress"
	OutcomeFailed     OutcomeKind = "Failed"
)

// MsgSagaInProgress is reported when the backend is still running the saga
const MsgSagaInProgress = "Order creation is already in progress"

// ErrUnexpectedResponse is returned for create-order bodies matching no outcome
var ErrUnexpectedResponse = errors.New("unexpected create-order response")

// Outcome is exactly one of Completed (Order set), InProgress (SagaExecutionID
// set) or Failed (SagaExecutionID and Message set, Order set when persisted).
type Outcome struct {
	Kind            OutcomeKind `json:"kind"`
	Order           *Order      `json:"order,omitempty"`
	SagaExecutionID string      `json:"sagaExecutionId,omitempty"`
	Message         string      `json:"message,omitempty"`
	HTTPStatus      int         `json:"httpStatus"`
}

// ClassifyCreateOrder maps a create-order body onto an Outcome
func ClassifyCreateOrder(status int, body CreateOrderResponse) (Outcome, error) {
	switch {
	case body.Success && body.Order != nil:
		return Outcome{
			Kind:            OutcomeCompleted,
			Order:           body.Order,
			SagaExecutionID: body.SagaExecutionID,
			HTTPStatus:      status,
		}, nil

	case body.InProgress || status == http.StatusAccepted:
		msg := body.ErrorMessage
		if msg == "" {
			msg = MsgSagaInProgress
		}
		return Outcome{
			Kind:            OutcomeInProgress,
			SagaExecutionID: body.SagaExecutionID,
			Message:         msg,
			HTTPStatus:      status,
		}, nil

	case !body.Success && body.ErrorMessage != "":
		return Outcome{
			Kind:            OutcomeFailed,
			Order:           body.Order,
			SagaExecutionID: body.SagaExecutionID,
			Message:         body.ErrorMessage,
			HTTPStatus:      status,
		}, nil

	case !body.Success && body.SagaExecutionID != "" && body.Order == nil:
		return Outcome{
			Kind:            OutcomeInProgress,
			SagaExecutionID: body.SagaExecutionID,
			Message:         MsgSagaInProgress,
			HTTPStatus:      status,
		}, nil
	}

	return Outcome{}, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, status)
}

// reinterpretRejected is the one place a 400 is read as a saga outcome
// instead of an error: the body must carry success and sagaExecutionId and
// no details map. Anything else stays an error.
func reinterpretRejected(err error) (Outcome, bool) {
	var re *apierr.ResponseError
	if !errors.As(err, &re) || re.Status != http.StatusBadRequest {
		return Outcome{}, false
	}
	if !apierr.IsSagaOutcomeBody(re.Body) {
		return Outcome{}, false
	}

	var body CreateOrderResponse
	if err := json.Unmarshal(re.Body, &body); err != nil {
		return Outcome{}, false
	}

	outcome, cerr := ClassifyCreateOrder(re.Status, body)
	if cerr != nil {
		return Outcome{}, false
	}
	return outcome, true
}
