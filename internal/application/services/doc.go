// Package services implements the kernel's business logic.
//
// MetadataService owns the object and field registry and keeps it in step
// with physical tables. PermissionService answers object, field and row
// access questions. PersistenceService runs record writes through
// validation, triggers and row security. FlowExecutor and ApprovalService
// drive automation on top of those writes. ServiceManager wires them
// together over the ports in internal/domain/ports.
package services
