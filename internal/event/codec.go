package event

import (
	"encoding/json"
	"fmt"
)

func newCommand(et EventType) (Event, error) {
	switch et {
	case EventTypeInitializeProtocol:
		return &InitializeProtocol{}, nil
	case EventTypeRegisterCollateral:
		return &RegisterCollateral{}, nil
	case EventTypeRegisterBorrowable:
		return &RegisterBorrowable{}, nil
	case EventTypeInitializePriceFeed:
		return &InitializePriceFeed{}, nil
	case EventTypeUpdatePrice:
		return &UpdatePrice{}, nil
	case EventTypeSyncOraclePrice:
		return &SyncOraclePrice{}, nil
	case EventTypeSetPaused:
		return &SetPaused{}, nil
	case EventTypeSetAssetActive:
		return &SetAssetActive{}, nil
	case EventTypeWalletCredit:
		return &WalletCredit{}, nil
	case EventTypeWalletDebit:
		return &WalletDebit{}, nil
	case EventTypeDeposit:
		return &Deposit{}, nil
	case EventTypeWithdraw:
		return &Withdraw{}, nil
	case EventTypeBorrow:
		return &Borrow{}, nil
	case EventTypeRepay:
		return &Repay{}, nil
	case EventTypeAccrueInterest:
		return &AccrueInterest{}, nil
	case EventTypeConfigureGad:
		return &ConfigureGad{}, nil
	case EventTypeCrankGad:
		return &CrankGad{}, nil
	case EventTypeLpDeposit:
		return &LpDeposit{}, nil
	case EventTypeLpWithdraw:
		return &LpWithdraw{}, nil
	case EventTypeFlashLoan:
		return &FlashLoan{}, nil
	case EventTypeOpenLeverage:
		return &OpenLeverage{}, nil
	case EventTypeSettleLeverage:
		return &SettleLeverage{}, nil
	case EventTypeCloseLeverage:
		return &CloseLeverage{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}

// Encode serialises a command for the event log.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode rebuilds a command from its event-log payload.
func Decode(et EventType, payload []byte) (Event, error) {
	evt, err := newCommand(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}
