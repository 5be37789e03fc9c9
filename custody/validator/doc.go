// Package validator implements the authorization validator: the component
// that decides whether a signed withdrawal approval is valid and spends it.
//
// A validator trusts exactly one approver key, serves exactly one ledger
// (bound once, permanently), and consumes each authorization ID at most once.
// Consumption is delegated to a consumption.Store so the single-use guarantee
// holds across whatever process topology the deployment runs.
package validator
