/*
Package wallet implements the ledger-backed wallet service.

A wallet holds no balance column; every balance read recomputes
credits minus debits over COMPLETED ledger entries. Debits and
transfers run the balance check under a wallet row lock inside the
same transaction as the append, so two concurrent debits can never
both succeed against funds that cover only one of them.
*/
package wallet
