// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package auth provides authentication primitives for Finlife Identity.
//
// # Domain Types
//
// Domain types (Principal, ResetToken) should be created using their
// constructors:
//   - NewPrincipal - creates a disabled Principal with a validated email and password hash
//   - NewResetToken - creates a ResetToken with a validated principal and token hash
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - authenticate, logout, token validation
//   - PasswordResetService - throttled reset requests and token consumption
//   - Provisioner - account creation with generated passwords
//
// AccountLockout is the login-attempt state machine shared by Service. Only a
// completed password reset clears a lock.
//
// Services are created with New* constructors that validate dependencies.
package auth
