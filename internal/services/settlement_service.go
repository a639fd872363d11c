package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/spf13/viper"

	"github.com/agrisubsidy/backend/internal/models"
)

const settlementQueueKey = "settlement_queue"

// SettlementService exports committed purchases to the subsidy program's
// settlement system. Each deduction becomes a pacs.008 credit transfer from
// the scheme settlement account back to the merchant (the reimbursement),
// queued on Redis after commit and drained on demand.
type SettlementService struct {
	redis *redis.Client
}

func NewSettlementService(redisClient *redis.Client) *SettlementService {
	viper.SetDefault("settlement.account", "SCHEME-SETTLEMENT-0001")
	viper.SetDefault("settlement.currency", "KES")
	viper.SetDefault("settlement.bic", "AGRISUBSDY")
	return &SettlementService{redis: redisClient}
}

// QueueForSettlement pushes a committed transaction onto the settlement
// queue. Without Redis the purchase still stands; settlement is deferred to
// a later reconciliation from the transactions table.
func (s *SettlementService) QueueForSettlement(ctx context.Context, tx *models.Transaction) error {
	if s.redis == nil {
		log.Printf("[SETTLEMENT] Redis unavailable, transaction %s not queued", tx.ID)
		return nil
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	return s.redis.RPush(ctx, settlementQueueKey, data).Err()
}

// ProcessSettlements drains the settlement queue
// @Summary Process settlements
// @Description Convert queued transactions to pacs.008 reimbursement messages and send them to settlement
// @Tags transactions
// @Produce json
// @Success 200 {object} object{processed=int,failed=int}
// @Failure 401 {object} ErrorResponse "No session"
// @Failure 503 {object} ErrorResponse "Queue unavailable"
// @Router /transactions/settlement [post]
func (s *SettlementService) ProcessSettlements(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		SendErrorResponse(w, "Settlement queue is unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	processed, failed := 0, 0
	for {
		data, err := s.redis.LPop(r.Context(), settlementQueueKey).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			HandleServiceError(w, "SETTLEMENT", err)
			return
		}

		var tx models.Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			log.Printf("[SETTLEMENT] Dropping malformed queue entry: %v", err)
			failed++
			continue
		}

		doc, err := s.BuildCreditTransfer(&tx)
		if err != nil {
			log.Printf("[SETTLEMENT] Failed to convert transaction %s: %v", tx.ID, err)
			failed++
			continue
		}

		if err := s.SendToSettlement(doc); err != nil {
			log.Printf("[SETTLEMENT] Failed to send transaction %s: %v", tx.ID, err)
			failed++
			continue
		}

		log.Printf("[SETTLEMENT] Transaction %s sent to settlement", tx.ID)
		processed++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"processed": processed,
		"failed":    failed,
	})
}

// BuildCreditTransfer creates the pacs.008 reimbursement of a transaction's
// total deduction, scheme settlement account to merchant. The message amount
// field is float-typed; the exact decimal stays in the transactions table.
func (s *SettlementService) BuildCreditTransfer(tx *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()

	currency := viper.GetString("settlement.currency")
	schemeAccount := viper.GetString("settlement.account")
	amount := tx.TotalDeduction.InexactFloat64()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
					EndToEndId: common.Max35Text(tx.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(viper.GetString("settlement.bic"))}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(schemeAccount)}[0],
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(tx.MerchantID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// BuildStatusReport creates a pacs.002 status report for a transaction.
func (s *SettlementService) BuildStatusReport(tx *models.Transaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// SendToSettlement hands a message to the settlement system.
func (s *SettlementService) SendToSettlement(doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: wire the scheme's settlement endpoint once credentials exist
	log.Printf("[SETTLEMENT] Outbound message:\n%s", string(xmlData))
	return nil
}

// ConvertToXML converts a settlement document to an XML string.
func (s *SettlementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
