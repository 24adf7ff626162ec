package main

import (
	"context"
	"log"
	"os"

	"campflow/campaign"
	"campflow/currency"
	"campflow/db"
	"campflow/dispute"
	"campflow/escrow"
	"campflow/identity"
	"campflow/proof"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	identityService := identity.NewService(identity.NewRepository(pool), jwtSecret)
	currencyService := currency.NewService(currency.NewRepository(pool), identityService)

	transfer := escrow.NoopTransfer{}
	escrowService := escrow.NewService(pool, pool, transfer)
	campaignService := campaign.NewService(pool, transfer)
	proofService := proof.NewService(pool, transfer)
	disputeService := dispute.NewService(pool, transfer)

	log.Printf("campflow engine ready: identity=%t currency=%t escrow=%t campaign=%t proof=%t dispute=%t",
		identityService != nil, currencyService != nil, escrowService != nil,
		campaignService != nil, proofService != nil, disputeService != nil)
}
