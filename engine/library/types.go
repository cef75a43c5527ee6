package library

type Wallet struct {
	PrivateKey string
	Account    Account
}

// Account is the public key notifications are signed with.
type Account = string

type Sha256 = string

type GrantID = string

type ScheduleID = string

type EventID = string

type InvestorID = string

type CompanyID = string

type OptionPoolID = string

type HoldingID = string

type TenderOfferID = string

type BidID = string

type RoundID = string

type ShareClass = string
