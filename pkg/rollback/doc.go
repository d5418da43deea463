// Package rollback expires what the controller left behind. The sweeper
// walks the ledger on a schedule, reverting executed actions whose ttl has
// lapsed and expiring approval requests nobody answered.
//
// A rollback consumes the diff frozen into the execution at apply time, so
// it detaches exactly what was attached even if the policy has since
// changed. A revert that keeps failing is retried every sweep and escalates
// to a human once it has failed enough times; the row stays executed until
// the revert lands.
package rollback
