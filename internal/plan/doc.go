/*
Package plan builds the task graph in two stages so that edges can target
tasks a collaborator creates late.

Configuration runs in fixed phases:

 1. Plugins register their immediate nodes when they are added with Use.
 2. Variant enumeration: the host registers each variant's output assembly,
    then every OnVariants callback runs, in registration order.
 3. Deferred hooks registered with AfterConfigure run. Collaborators create
    their tasks here and publish them into the Registry under a TaskKey.
 4. Finalize: the builder waits for the collaborator's completion signal,
    then resolves every pending Attachment against the Registry.
 5. The graph is frozen, which rejects cycles.

A pending attachment is a named edge whose endpoints may be registry keys. It
is only looked up in phase 4, after the collaborator has declared that it is
done publishing, so no callback ever needs to be nested inside another.
*/
package plan
